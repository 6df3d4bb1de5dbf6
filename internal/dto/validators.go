package dto

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// epicPattern matches broker instrument identifiers such as
// IX.D.GOLD.IFM.IP.
var epicPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._]*$`)

// RegisterValidators installs custom binding validators. Call once
// before the router starts serving.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	_ = v.RegisterValidation("epic", func(fl validator.FieldLevel) bool {
		return epicPattern.MatchString(fl.Field().String())
	})
}
