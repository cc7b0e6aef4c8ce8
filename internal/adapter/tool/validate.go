package tool

import (
	"fmt"
	"net/mail"
	"time"
)

// RequireField returns an error if the string value is empty.
func RequireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// RequireFields validates multiple required string fields at once.
// Arguments alternate name, value.
func RequireFields(kvs ...string) error {
	if len(kvs)%2 != 0 {
		return fmt.Errorf("RequireFields: odd number of arguments")
	}
	for i := 0; i < len(kvs); i += 2 {
		if kvs[i+1] == "" {
			return fmt.Errorf("'%s' is required", kvs[i])
		}
	}
	return nil
}

// ValidateAll returns the first non-nil error from the given list.
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ValidateRFC3339 checks that value parses as an RFC 3339 timestamp.
// An empty value is allowed (use RequireField to enforce presence).
func ValidateRFC3339(name, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return fmt.Errorf("invalid %s: want RFC 3339 timestamp, got %q", name, value)
	}
	return nil
}

// ValidateDate checks that value parses as a YYYY-MM-DD civil date.
// An empty value is allowed.
func ValidateDate(name, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return fmt.Errorf("invalid %s: want YYYY-MM-DD, got %q", name, value)
	}
	return nil
}

// ValidateAddresses checks that every entry parses as an email address.
func ValidateAddresses(name string, values []string) error {
	if len(values) == 0 {
		return fmt.Errorf("'%s' is required", name)
	}
	for _, v := range values {
		if _, err := mail.ParseAddress(v); err != nil {
			return fmt.Errorf("invalid %s entry %q: %v", name, v, err)
		}
	}
	return nil
}
