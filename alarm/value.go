package alarm

import (
	"math"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/pkg/errors"
)

// Definitions written by earlier tooling keep numbers as strings ("300") and
// booleans as "True". Int, Float and Bool accept both the typed and the string
// form when decoded from DynamoDB or YAML/JSON, and are always written typed.

// Int is an integer alarm parameter.
type Int int64

// Float is a floating point alarm parameter.
type Float float64

// Bool is a boolean alarm parameter.
type Bool bool

func (i *Int) UnmarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	s, ok := scalar(av)
	if !ok {
		return nil
	}
	return i.parse(s)
}

func (i Int) MarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	av.N = aws.String(strconv.FormatInt(int64(i), 10))
	return nil
}

func (i *Int) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return errors.WithStack(err)
	}
	return i.parse(s)
}

func (i *Int) parse(s string) error {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		// "300.0" is accepted as long as it is integral
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil || math.IsInf(f, 0) || f != float64(int64(f)) {
			return errors.Errorf("invalid integer %q", s)
		}
		v = int64(f)
	}
	*i = Int(v)
	return nil
}

func (f *Float) UnmarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	s, ok := scalar(av)
	if !ok {
		return nil
	}
	return f.parse(s)
}

func (f Float) MarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	av.N = aws.String(strconv.FormatFloat(float64(f), 'f', -1, 64))
	return nil
}

func (f *Float) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return errors.WithStack(err)
	}
	return f.parse(s)
}

func (f *Float) parse(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Errorf("invalid number %q", s)
	}
	*f = Float(v)
	return nil
}

func (b *Bool) UnmarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	if av.BOOL != nil {
		*b = Bool(*av.BOOL)
		return nil
	}
	s, ok := scalar(av)
	if !ok {
		return nil
	}
	return b.parse(s)
}

func (b Bool) MarshalDynamoDBAttributeValue(av *dynamodb.AttributeValue) error {
	av.BOOL = aws.Bool(bool(b))
	return nil
}

func (b *Bool) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return errors.WithStack(err)
	}
	return b.parse(s)
}

func (b *Bool) parse(s string) error {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return errors.Errorf("invalid boolean %q", s)
	}
	*b = Bool(v)
	return nil
}

// scalar returns the textual form of a number or string attribute.
// NULL and missing attributes decode to the zero value.
func scalar(av *dynamodb.AttributeValue) (string, bool) {
	switch {
	case av == nil:
		return "", false
	case av.N != nil:
		return *av.N, true
	case av.S != nil:
		return *av.S, true
	}
	return "", false
}
