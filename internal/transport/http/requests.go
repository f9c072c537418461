package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"studio/backend/internal/civiltime"
	"studio/backend/internal/service/availability"
)

type checkRepeatRequest struct {
	Date           string `json:"date" binding:"required,civildate"`
	TrainerID      int64  `json:"trainerId" binding:"required,gt=0"`
	LocationID     int64  `json:"locationId" binding:"required,gt=0"`
	Time           string `json:"time" binding:"required,clock"`
	RepeatWeeks    int    `json:"repeatWeeks" binding:"required,gt=0"`
	CheckUsersBusy *bool  `json:"checkUsersBusy"`
	UserID         *int64 `json:"userId" binding:"omitempty,gt=0"`
}

func (r checkRepeatRequest) input() availability.CheckRepeatInput {
	date, _ := civil.ParseDate(r.Date)
	return availability.CheckRepeatInput{
		Date:           date,
		TrainerID:      r.TrainerID,
		LocationID:     r.LocationID,
		Time:           r.Time,
		RepeatWeeks:    r.RepeatWeeks,
		CheckUsersBusy: r.CheckUsersBusy,
		UserID:         r.UserID,
	}
}

type checkAvailabilityRequest struct {
	Date                    string `json:"date" binding:"required,civildate"`
	TrainerID               int64  `json:"trainerId" binding:"required,gt=0"`
	LocationID              int64  `json:"locationId" binding:"required,gt=0"`
	Time                    string `json:"time" binding:"required,clock"`
	CheckUsersBusy          *bool  `json:"checkUsersBusy"`
	UserID                  *int64 `json:"userId" binding:"omitempty,gt=0"`
	IgnorePersonalBookingID *int64 `json:"ignorePersonalBookingId" binding:"omitempty,gt=0"`
}

func (r checkAvailabilityRequest) input() availability.CheckAvailabilityInput {
	date, _ := civil.ParseDate(r.Date)
	return availability.CheckAvailabilityInput{
		Date:                    date,
		TrainerID:               r.TrainerID,
		LocationID:              r.LocationID,
		Time:                    r.Time,
		CheckUsersBusy:          r.CheckUsersBusy,
		UserID:                  r.UserID,
		IgnorePersonalBookingID: r.IgnorePersonalBookingID,
	}
}

type busyBlocksQuery struct {
	Date                    string `form:"date" binding:"required,civildate"`
	UserIDs                 string `form:"userIds" binding:"required"`
	IgnorePersonalBookingID *int64 `form:"ignorePersonalBookingId" binding:"omitempty,gt=0"`
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("userIds must be a comma-separated list of integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var registerOnce sync.Once

// registerValidations adds the civildate and clock tags to gin's validator
// and reports fields by their JSON or form name.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("civildate", func(fl validator.FieldLevel) bool {
			d, err := civil.ParseDate(fl.Field().String())
			return err == nil && d.IsValid()
		})
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := civiltime.ParseClock(fl.Field().String())
			return err == nil
		})
	})
}

func fieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name != "" && name != "-" {
			return name
		}
	}
	return f.Name
}

// bindingMessage turns a bind error into a client-facing message.
func bindingMessage(err error) string {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		fe := vErrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "civildate":
			return fe.Field() + " must be YYYY-MM-DD"
		case "clock":
			return fe.Field() + " must be HH:MM"
		case "gt":
			return fe.Field() + " must be positive"
		default:
			return fe.Field() + " is invalid"
		}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s must be %s", typeErr.Field, jsonKind(typeErr.Type))
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return "query parameter is not a number"
	}
	if errors.Is(err, io.EOF) {
		return "request body is required"
	}
	return "request body must be valid JSON"
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Bool:
		return "a boolean"
	case reflect.String:
		return "a string"
	default:
		return "a valid " + t.Kind().String()
	}
}
