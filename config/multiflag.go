package config

import (
	"strings"
)

// multiFlag collects the values of a flag used multiple times, e.g. the
// networks excluded from the rate limit.
type multiFlag []string

func (f *multiFlag) String() string {
	return strings.Join(*f, ",")
}

func (f *multiFlag) Set(value string) error {
	*f = append(*f, value)
	return nil
}

// UnmarshalYAML replaces the values set earlier.
func (f *multiFlag) UnmarshalYAML(unmarshal func(any) error) error {
	var values []string
	if err := unmarshal(&values); err != nil {
		return err
	}
	*f = values
	return nil
}
