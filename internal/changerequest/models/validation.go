package models

import (
	"errors"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "mppchs/pkg/domain-errors"
)

var validate = validator.New()

var (
	aadhaarRe = regexp.MustCompile(`^[0-9]{12}$`)
	panRe     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
	ifscRe    = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	pincodeRe = regexp.MustCompile(`^[0-9]{6}$`)
	mobileRe  = regexp.MustCompile(`^[0-9]{10}$`)
)

// Relationships is the allowlist of dependent relationships.
var Relationships = []string{
	"spouse", "son", "daughter", "father", "mother",
	"brother", "sister", "grandson", "granddaughter", "other",
}

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	register := func(tag string, re *regexp.Regexp) {
		_ = validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		})
	}
	register("aadhaar", aadhaarRe)
	register("pan", panRe)
	register("ifsc", ifscRe)
	register("pincode", pincodeRe)
	register("mobile", mobileRe)
	_ = validate.RegisterValidation("relationship", func(fl validator.FieldLevel) bool {
		return slices.Contains(Relationships, fl.Field().String())
	})
}

// Validate checks the structure of an after snapshot. It expects normalized
// input and returns a CodeValidation error naming every offending field.
// Dependent rows must carry distinct ids and temp ids.
func (s BeneficiarySnapshot) Validate() error {
	var problems []string
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return dErrors.Wrap(err, dErrors.CodeValidation, "invalid payload")
		}
		for _, fe := range verrs {
			problems = append(problems, fieldPath(fe.Namespace()))
		}
	}
	for i, d := range s.Dependents {
		if d.Removed {
			continue
		}
		if d.FullName == "" {
			problems = append(problems, dependentPath(i, "full_name"))
		}
		if d.Relationship == "" {
			problems = append(problems, dependentPath(i, "relationship"))
		}
	}
	problems = append(problems, duplicateIdentities(s.Dependents)...)
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	problems = slices.Compact(problems)
	return dErrors.New(dErrors.CodeValidation, "invalid fields: "+strings.Join(problems, ", "))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func dependentPath(i int, field string) string {
	return "dependents[" + strconv.Itoa(i) + "]." + field
}

// duplicateIdentities names every dependent row whose id or temp id was
// already used by an earlier row.
func duplicateIdentities(deps []DependentSnapshot) []string {
	var problems []string
	first := make(map[Identity]int, len(deps))
	for i, d := range deps {
		if d.Identity.IsZero() {
			continue
		}
		if j, dup := first[d.Identity]; dup {
			key := "id"
			if d.Identity.Kind() == IdentityEphemeral {
				key = "temp_id"
			}
			problems = append(problems, dependentPath(i, key)+" repeats dependents["+strconv.Itoa(j)+"]")
			continue
		}
		first[d.Identity] = i
	}
	return problems
}
