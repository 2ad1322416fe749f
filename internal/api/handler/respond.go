package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"rpg-forum/internal/apperr"
	"rpg-forum/internal/model"
)

// respondError writes err with the status and code of its class.
func respondError(c *gin.Context, err error) {
	ae := apperr.Wrap(err)
	c.JSON(apperr.HTTPStatus(err), gin.H{"error": ae.Message, "code": ae.Code})
}

func paramID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, apperr.Invalidf("invalid %s %q", name, c.Param(name))
	}
	return uint(id), nil
}

func entityParam(c *gin.Context) (model.EntityRef, error) {
	t, err := model.ParseEntityType(c.Param("entity_type"))
	if err != nil {
		return model.EntityRef{}, apperr.Invalidf("%v", err)
	}
	id, err := paramID(c, "id")
	if err != nil {
		return model.EntityRef{}, err
	}
	return model.EntityRef{Type: t, ID: id}, nil
}
