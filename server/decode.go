package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	errs "github.com/campuslink/campus/errors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/leebenson/conform"
)

var (
	translatorOnce sync.Once
	translator     ut.Translator
)

// registerTranslations makes gin's validator report json field names in
// plain english
func registerTranslations() {
	translatorOnce.Do(func() {
		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")

		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = en_translations.RegisterDefaultTranslations(v, translator)
	})
}

// decode reads a json body into v, trims it with its conform tags and
// validates its binding tags
func decode(c *gin.Context, v interface{}) *errs.Error {
	registerTranslations()

	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil {
		return errs.New("unable to parse request body", http.StatusBadRequest)
	}
	if err := conform.Strings(v); err != nil {
		return errs.New("unable to parse request body", http.StatusBadRequest)
	}
	if err := binding.Validator.ValidateStruct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			messages := make([]string, 0, len(verrs))
			for _, e := range verrs {
				messages = append(messages, e.Translate(translator))
			}
			return errs.New(strings.Join(messages, "; "), http.StatusBadRequest)
		}
		return errs.New(err.Error(), http.StatusBadRequest)
	}
	return nil
}
