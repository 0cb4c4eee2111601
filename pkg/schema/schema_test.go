package schema_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatbox/pkg/schema"
)

var testSchema = schema.New(
	schema.Field{
		Key:      "outer",
		Name:     "outer",
		Kind:     schema.Object,
		Required: true,
		Fields: []schema.Field{
			{Key: "text", Name: "text", Kind: schema.String, Required: true},
			{Key: "extra", Name: "extra", Kind: schema.Object},
		},
	},
	schema.Field{Key: "count_value", Name: "countValue", Kind: schema.Number},
	schema.Field{Key: "enabled", Name: "enabled", Kind: schema.Bool},
	schema.Field{Key: "tags", Name: "tags", Kind: schema.StringArray},
)

func validationPaths(err error) []string {
	var vErr *schema.ValidationError
	Expect(errors.As(err, &vErr)).To(BeTrue())
	return vErr.Paths()
}

var _ = Describe("Schema", func() {
	Describe("Validate", func() {
		It("accepts a payload matching every rule", func() {
			err := testSchema.Validate([]byte(`{"outer":{"text":"hi","extra":{"a":1}},"count_value":1.5,"enabled":true,"tags":["a","b"]}`))
			Expect(err).NotTo(HaveOccurred())
		})

		It("accepts a payload with only required fields", func() {
			Expect(testSchema.Validate([]byte(`{"outer":{"text":""}}`))).To(Succeed())
		})

		It("rejects invalid JSON at the root", func() {
			err := testSchema.Validate([]byte(`{not json`))
			Expect(err).To(HaveOccurred())
			Expect(validationPaths(err)).To(Equal([]string{""}))
		})

		It("rejects a non-object root", func() {
			err := testSchema.Validate([]byte(`["a"]`))
			Expect(err).To(MatchError(ContainSubstring("must be a JSON object")))
		})

		It("reports the nested path of a missing object", func() {
			err := testSchema.Validate([]byte(`{}`))
			Expect(validationPaths(err)).To(Equal([]string{"outer", "outer.text"}))
		})

		It("reports only the object when it has the wrong type", func() {
			err := testSchema.Validate([]byte(`{"outer":"hello"}`))
			Expect(validationPaths(err)).To(Equal([]string{"outer"}))
		})

		It("treats null as absent", func() {
			err := testSchema.Validate([]byte(`{"outer":{"text":null},"enabled":null}`))
			Expect(validationPaths(err)).To(Equal([]string{"outer.text"}))
		})

		It("collects every wrong-typed field", func() {
			err := testSchema.Validate([]byte(`{"outer":{"text":5,"extra":[]},"count_value":"1","enabled":"yes","tags":"a"}`))
			Expect(validationPaths(err)).To(Equal([]string{
				"outer.text", "outer.extra", "countValue", "enabled", "tags",
			}))
		})

		It("reports the index of a non-string array item", func() {
			err := testSchema.Validate([]byte(`{"outer":{"text":"x"},"tags":["a",2,"c",false]}`))
			Expect(validationPaths(err)).To(Equal([]string{"tags[1]", "tags[3]"}))
		})

		It("describes the failure in the error string", func() {
			err := testSchema.Validate([]byte(`{"outer":{"text":1}}`))
			Expect(err).To(MatchError("validation failed: outer.text must be a string"))
		})

		It("exposes the stable error kind", func() {
			err := testSchema.Validate([]byte(`{}`))
			var vErr *schema.ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(vErr.Kind()).To(Equal(schema.KindValidation))
		})
	})

	Describe("ValidateTypes", func() {
		It("ignores missing required fields", func() {
			Expect(testSchema.ValidateTypes([]byte(`{}`))).To(Succeed())
		})

		It("still rejects wrong-typed fields", func() {
			err := testSchema.ValidateTypes([]byte(`{"outer":{"text":[]}}`))
			Expect(validationPaths(err)).To(Equal([]string{"outer.text"}))
		})

		It("still rejects a non-object root", func() {
			Expect(testSchema.ValidateTypes([]byte(`"text"`))).NotTo(Succeed())
		})
	})

	Describe("Kind", func() {
		It("names every kind", func() {
			Expect(schema.String.String()).To(Equal("string"))
			Expect(schema.Number.String()).To(Equal("number"))
			Expect(schema.Bool.String()).To(Equal("boolean"))
			Expect(schema.Object.String()).To(Equal("object"))
			Expect(schema.StringArray.String()).To(Equal("array of strings"))
		})
	})
})

var _ = Describe("Number overflow", func() {
	It("rejects a number literal that does not fit a float64", func() {
		err := testSchema.Validate([]byte(`{"outer":{"text":"hi"},"count_value":1e400}`))
		Expect(validationPaths(err)).To(Equal([]string{"countValue"}))
		Expect(err.Error()).To(ContainSubstring("countValue must be a finite number"))
	})

	It("accepts large integers", func() {
		err := testSchema.Validate([]byte(`{"outer":{"text":"hi"},"count_value":9007199254740993}`))
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("DecodeError", func() {
	type target struct {
		Outer struct {
			Text string `json:"text"`
		} `json:"outer"`
	}

	decode := func(body string) error {
		var t target
		return json.Unmarshal([]byte(body), &t)
	}

	It("maps a type mismatch to the error path of its rule", func() {
		err := testSchema.DecodeError(decode(`{"outer":5}`))
		Expect(err.Fields).To(Equal([]schema.FieldError{{Path: "outer", Message: "must be an object"}}))
	})

	It("maps nested wire keys to their names", func() {
		err := testSchema.DecodeError(decode(`{"outer":{"text":1}}`))
		Expect(err.Fields).To(Equal([]schema.FieldError{{Path: "outer.text", Message: "must be a string"}}))
	})

	It("keeps unknown keys in the path", func() {
		type other struct {
			Extra struct {
				Depth string `json:"depth"`
			} `json:"outer"`
		}
		var o other
		err := testSchema.DecodeError(json.Unmarshal([]byte(`{"outer":{"depth":1}}`), &o))
		Expect(err.Paths()).To(Equal([]string{"outer.depth"}))
		Expect(err.Fields[0].Message).To(Equal("has an unexpected type"))
	})

	It("reports other failures at the root", func() {
		err := testSchema.DecodeError(errors.New("boom"))
		Expect(err.Fields).To(Equal([]schema.FieldError{{Message: "body could not be decoded"}}))
		Expect(err.Kind()).To(Equal(schema.KindValidation))
	})
})
