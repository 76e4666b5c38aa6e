package config

import "strings"

// listFlag holds the values of a comma separated list flag, like
// -public-targets=http://campaign-1:3002,http://campaign-2:3002. In YAML
// the list is written as a sequence.
type listFlag struct {
	sep    string
	value  string
	values []string
}

func commaListFlag() *listFlag {
	return &listFlag{sep: ","}
}

// Set replaces the values. Spaces around the items and empty items are
// dropped.
func (lf *listFlag) Set(value string) error {
	if lf == nil {
		return nil
	}

	lf.value = value
	lf.values = nil
	for _, v := range strings.Split(value, lf.sep) {
		if v = strings.TrimSpace(v); v != "" {
			lf.values = append(lf.values, v)
		}
	}

	return nil
}

func (lf *listFlag) UnmarshalYAML(unmarshal func(any) error) error {
	var values []string
	if err := unmarshal(&values); err != nil {
		return err
	}

	return lf.Set(strings.Join(values, lf.sep))
}

func (lf *listFlag) String() string {
	if lf == nil {
		return ""
	}

	return lf.value
}
