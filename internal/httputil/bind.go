// Package httputil holds request binding and error mapping shared by the
// Fiber handlers.
package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/loyalty/internal/ledger"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// BindJSON decodes the request body into dst and validates its struct tags.
func BindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return Validate(dst)
}

// Validate checks dst's `validate` struct tags.
func Validate(dst any) error {
	if err := validatorInstance().Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fiber.NewError(http.StatusBadRequest, strings.Join(msgs, "; "))
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// AccountKeyParams reads :ownerType, :ownerId and :currency route params.
func AccountKeyParams(c *fiber.Ctx) (ledger.AccountKey, error) {
	key := ledger.AccountKey{
		OwnerType: ledger.OwnerType(strings.ToUpper(c.Params("ownerType"))),
		OwnerID:   c.Params("ownerId"),
		Currency:  ledger.CurrencyClass(strings.ToUpper(c.Params("currency"))),
	}
	if err := key.Validate(); err != nil {
		return ledger.AccountKey{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return key, nil
}
