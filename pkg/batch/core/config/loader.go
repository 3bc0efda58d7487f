package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/weatherflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/weatherflow/pkg/batch/support/util/logger"
)

const moduleName = "config"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadOptions describes where configuration comes from.
type LoadOptions struct {
	// EnvFilePath is the .env file to load first. Empty means ".env" in the working directory.
	EnvFilePath string
	// Embedded is the default YAML compiled into the binary.
	Embedded EmbeddedConfig
	// ConfigFile is an optional YAML file layered over Embedded (the --conf flag).
	ConfigFile string
	// EnvPrefix prefixes every environment override, e.g. "WEATHERFLOW_".
	EnvPrefix string
	// Expander expands ${VAR} placeholders in both YAML sources. Defaults to OsEnvironmentExpander.
	Expander EnvironmentExpander
}

// Load populates target, which must be a pointer to a struct already holding its defaults.
//
// Sources are applied in order: .env file, embedded YAML, the optional configuration file and finally
// environment variables named after the yaml tags (PREFIX_SECTION_FIELD). The result is validated with
// the struct's `validate` tags. Any failure is reported as a configuration error.
func Load(opts LoadOptions, target any) error {
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return exception.NewConfigurationError(moduleName, "configuration target must be a pointer to a struct", nil)
	}

	if opts.EnvFilePath != "" {
		if err := godotenv.Load(opts.EnvFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", opts.EnvFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	expander := opts.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}

	if len(opts.Embedded) > 0 {
		if err := decodeYAML(expander, opts.Embedded, target); err != nil {
			return exception.NewConfigurationError(moduleName, "failed to unmarshal embedded config", err)
		}
	}

	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return exception.NewConfigurationError(moduleName, fmt.Sprintf("failed to read config file %s", opts.ConfigFile), err)
		}
		if err := decodeYAML(expander, data, target); err != nil {
			return exception.NewConfigurationError(moduleName, fmt.Sprintf("failed to unmarshal config file %s", opts.ConfigFile), err)
		}
		logger.Infof("Loaded configuration file %s.", opts.ConfigFile)
	}

	if err := loadStructFromEnv(val.Elem(), opts.EnvPrefix); err != nil {
		return exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}

	if err := Validate(target); err != nil {
		return err
	}
	return nil
}

// Validate checks target against its `validate` struct tags.
func Validate(target any) error {
	if err := validator.New().Struct(target); err != nil {
		return exception.NewConfigurationError(moduleName, "configuration validation failed", err)
	}
	return nil
}

// decodeYAML unmarshals data over target. yaml.v3 leaves fields absent from data untouched,
// so defaults and earlier sources survive unless explicitly overridden.
func decodeYAML(expander EnvironmentExpander, data []byte, target any) error {
	expanded, err := expander.Expand(data)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(expanded, target)
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Map && field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Struct {
			// Example: WEATHERFLOW_DATABASE_DEFAULT_HOST sets Database["default"].Host.
			if err := loadMapOfStructsFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapOfStructsFromEnv infers map keys and struct field names from environment variable names.
// The map key is the first segment after prefix, lowercased; the rest names the field by yaml tag.
func loadMapOfStructsFromEnv(mapField reflect.Value, prefix string) error {
	elemType := mapField.Type().Elem()

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndFieldParts := strings.Split(parts[0], "_")
		if len(keyAndFieldParts) < 2 {
			continue
		}
		mapKey := strings.ToLower(keyAndFieldParts[0])
		structFieldName := strings.Join(keyAndFieldParts[1:], "_")

		if mapField.IsNil() {
			mapField.Set(reflect.MakeMap(mapField.Type()))
		}
		structVal := reflect.New(elemType).Elem()
		if existing := mapField.MapIndex(reflect.ValueOf(mapKey)); existing.IsValid() {
			structVal.Set(existing)
		}
		if err := setStructFieldFromEnv(structVal, structFieldName, parts[1]); err != nil {
			return err
		}
		mapField.SetMapIndex(reflect.ValueOf(mapKey), structVal)
	}
	return nil
}

// setStructFieldFromEnv sets the struct field whose yaml tag matches fieldName case-insensitively.
// Unknown field names are ignored.
func setStructFieldFromEnv(structVal reflect.Value, fieldName string, value string) error {
	typ := structVal.Type()
	for i := 0; i < typ.NumField(); i++ {
		yamlTag := strings.Split(typ.Field(i).Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		if strings.EqualFold(yamlTag, fieldName) {
			return setField(structVal.Field(i), value)
		}
	}
	return nil
}

// setField converts value to the field's kind. Durations use time.ParseDuration and
// slices are comma-separated.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		items := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(items))
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			elem := reflect.New(field.Type().Elem()).Elem()
			if err := setField(elem, item); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
	}
	return nil
}
