package lead

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Submission 是公开表单提交的请求体
type Submission struct {
	FirstName         string `json:"firstName" validate:"required"`
	LastName          string `json:"lastName" validate:"required"`
	Street            string `json:"street"`
	City              string `json:"city" validate:"required_without=ZipCode"`
	ZipCode           string `json:"zipCode" validate:"required_without=City"`
	PhoneNumber       string `json:"phoneNumber" validate:"required,usphone"`
	EmailAddress      string `json:"emailAddress" validate:"required,leademail"`
	FollowUpRequested string `json:"followUpRequested" validate:"oneof=yes no"`
}

// ValidationError 表示表单不合法，消息直接返回给客户端
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Normalize 去除首尾空白，邮箱和跟进选项统一为小写
func (s *Submission) Normalize() {
	s.FirstName = strings.TrimSpace(s.FirstName)
	s.LastName = strings.TrimSpace(s.LastName)
	s.Street = strings.TrimSpace(s.Street)
	s.City = strings.TrimSpace(s.City)
	s.ZipCode = strings.TrimSpace(s.ZipCode)
	s.PhoneNumber = strings.TrimSpace(s.PhoneNumber)
	s.EmailAddress = strings.ToLower(strings.TrimSpace(s.EmailAddress))
	s.FollowUpRequested = strings.ToLower(strings.TrimSpace(s.FollowUpRequested))
}

// digitsOnly 去掉号码中的所有非数字字符
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhone 接受10位号码，或以1开头的11位号码
func IsValidPhone(phone string) bool {
	d := digitsOnly(phone)
	return len(d) == 10 || (len(d) == 11 && d[0] == '1')
}

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// RegisterValidators 注册表单使用的自定义校验标签
func RegisterValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("usphone", func(fl validator.FieldLevel) bool {
		return IsValidPhone(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("leademail", func(fl validator.FieldLevel) bool {
		return IsValidEmail(fl.Field().String())
	})
}

// Validator 包装了注册好自定义标签的 validator 实例
type Validator struct {
	v *validator.Validate
}

func NewValidator() (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterValidators(v); err != nil {
		return nil, err
	}
	return &Validator{v: v}, nil
}

// Validate 校验已规范化的提交，按 缺失字段 -> 跟进选项 -> 电话 -> 邮箱 的顺序报告第一个问题
func (val *Validator) Validate(s *Submission) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	failed := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		failed[fe.Field()] = fe.Tag()
	}
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" || fe.Tag() == "required_without" {
			return &ValidationError{Message: "Missing required fields"}
		}
	}
	if _, ok := failed["FollowUpRequested"]; ok {
		return &ValidationError{Message: "Follow-up selection is required"}
	}
	if _, ok := failed["PhoneNumber"]; ok {
		return &ValidationError{Message: "Invalid phone number"}
	}
	if _, ok := failed["EmailAddress"]; ok {
		return &ValidationError{Message: "Invalid email address"}
	}
	return &ValidationError{Message: "Invalid request"}
}
