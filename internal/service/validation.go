package service

import (
	"errors"
	"reflect"
	"strings"

	"warehouse/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names so field keys line up with request bodies
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("decimal_gt0", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && d.IsPositive()
	})
	_ = v.RegisterValidation("decimal_gte0", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && !d.IsNegative()
	})
	_ = v.RegisterValidation("decimal_max", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && d.LessThanOrEqual(model.MaxMoney)
	})
	_ = v.RegisterValidation("invoice_kind", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseKind(fl.Field().String())
		return ok
	})
	return v
}

// messages keyed by "<field>.<tag>"; fallbacks keyed by tag alone
var fieldMessages = map[string]string{
	"method.required":       "Vui lòng chọn phương thức thanh toán",
	"method.oneof":          "Phương thức thanh toán phải là tiền mặt hoặc chuyển khoản",
	"amount.required":       "Vui lòng nhập số tiền thanh toán",
	"amount.decimal_gt0":    "Số tiền thanh toán phải là số lớn hơn 0",
	"amount.decimal_max":    "Số tiền thanh toán vượt quá giới hạn cho phép",
	"reference.required_if": "Vui lòng nhập mã tham chiếu chuyển khoản",
	"reference.max":         "Mã tham chiếu tối đa 100 ký tự",
	"kind.required":         "Vui lòng chọn loại phiếu",
	"kind.invoice_kind":     "Loại phiếu không hợp lệ",
	"supplier_id.required":  "Vui lòng chọn nhà cung cấp",
	"supplier_id.uuid":      "Nhà cung cấp không hợp lệ",
	"items.required":        "Phiếu phải có ít nhất một sản phẩm",
	"items.min":             "Phiếu phải có ít nhất một sản phẩm",
}

var tagMessages = map[string]string{
	"required":     "Trường này là bắt buộc",
	"uuid":         "Mã không hợp lệ",
	"gt":           "Giá trị phải lớn hơn 0",
	"decimal_gte0": "Giá trị phải là số không âm",
	"decimal_max":  "Giá trị vượt quá giới hạn cho phép",
	"max":          "Giá trị quá dài",
}

// translateValidation turns validator errors into a field-indexed
// ValidationError. Nested fields keep their path, e.g. "items[0].quantity".
func translateValidation(err error) *ValidationError {
	out := &ValidationError{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out.Add(FieldGeneral, err.Error())
		return out
	}

	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		msg, ok := fieldMessages[key+"."+fe.Tag()]
		if !ok {
			msg, ok = tagMessages[fe.Tag()]
		}
		if !ok {
			msg = fe.Error()
		}
		out.Add(key, msg)
	}
	return out
}
