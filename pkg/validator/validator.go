package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	zhTranslations "github.com/go-playground/validator/v10/translations/zh"
)

var (
	once  sync.Once
	trans ut.Translator
)

// LazyInitGinValidator 替换 gin 的校验提示为指定语言，字段名使用 json tag
func LazyInitGinValidator(language string) {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*govalidator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		enLocale := en.New()
		uni := ut.New(enLocale, enLocale, zh.New())
		t, _ := uni.GetTranslator(language)
		var err error
		if t.Locale() == "zh" {
			err = zhTranslations.RegisterDefaultTranslations(v, t)
		} else {
			err = enTranslations.RegisterDefaultTranslations(v, t)
		}
		if err == nil {
			trans = t
		}
	})
}

// Translate 校验失败时返回翻译后的提示，多个字段用分号连接
func Translate(err error) string {
	var verrs govalidator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if trans != nil {
			msgs = append(msgs, fe.Translate(trans))
		} else {
			msgs = append(msgs, fe.Field()+" failed on "+fe.Tag())
		}
	}
	return strings.Join(msgs, "; ")
}
