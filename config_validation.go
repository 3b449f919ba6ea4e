package serialplot

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("serialport", validSerialPort); err != nil {
		panic(err)
	}
	return v
}

// validSerialPort rejects an unselected port, the no-ports placeholder and
// path traversal.
func validSerialPort(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || name == NoPortsAvailable {
		return false
	}
	return !strings.Contains(name, "..")
}

// ValidateConnection checks a connection config before a session starts.
// Failures are *ConfigError; port failures wrap ErrNoPortSelected.
func ValidateConnection(cfg ConnectionConfig) error {
	return toConfigError(validate.Struct(cfg))
}

// ValidateSettings checks the acquisition and logging sections.
func ValidateSettings(cfg *AppConfig) error {
	if err := toConfigError(validate.Struct(cfg.Acquisition)); err != nil {
		return err
	}
	return toConfigError(validate.Struct(cfg.Logging))
}

// ValidateConfig checks the whole file, connection included.
func ValidateConfig(cfg *AppConfig) error {
	return toConfigError(validate.Struct(cfg))
}

func toConfigError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Err: err}
	}

	fe := verrs[0]
	ce := &ConfigError{Field: fe.Field()}
	switch {
	case fe.Tag() == "serialport":
		ce.Err = ErrNoPortSelected
	case fe.Field() == "baud_rate":
		ce.Err = fmt.Errorf("invalid baud rate %v, must be one of: %v", fe.Value(), AllowedBaudRates)
	default:
		ce.Err = fmt.Errorf("value %v fails %q", fe.Value(), joinTag(fe.Tag(), fe.Param()))
	}
	return ce
}

func joinTag(tag, param string) string {
	if param == "" {
		return tag
	}
	return tag + "=" + param
}
