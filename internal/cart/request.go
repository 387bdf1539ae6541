package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Request describes a cart to price in one go.
type Request struct {
	Customer string        `json:"customer" validate:"required,max=128"`
	Lines    []LineRequest `json:"lines" validate:"max=500,dive"`
	Rules    []int64       `json:"rules" validate:"max=100,dive,gt=0"`
	Checkout bool          `json:"checkout"`
}

// LineRequest is one product quantity of a Request.
type LineRequest struct {
	ProductID int64 `json:"product_id" validate:"gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=0,lte=10000"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// DecodeRequest reads and validates a JSON request.
func DecodeRequest(r io.Reader) (Request, error) {
	var req Request
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return Request{}, fmt.Errorf("decode cart request: %w", errors.Join(ErrInvalidInput, err))
	}
	if err := validate.Struct(req); err != nil {
		return Request{}, formatValidationErrors(err)
	}
	return req, nil
}

func formatValidationErrors(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return fmt.Errorf("validate cart request: %w", errors.Join(ErrInvalidInput, err))
	}
	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Namespace(), validationMessage(fe)))
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	}
	return "is invalid"
}

// Run builds a cart from req, attaches its rules and quotes it, checking it
// out when requested.
func (s *Service) Run(ctx context.Context, req Request) (Quote, error) {
	id, err := s.Create(req.Customer)
	if err != nil {
		return Quote{}, err
	}
	for _, line := range req.Lines {
		if err := s.UpdateQty(ctx, id, pricing.ProductID(line.ProductID), line.Quantity); err != nil {
			return Quote{}, err
		}
	}
	for _, ruleID := range req.Rules {
		if _, err := s.AddRule(ctx, id, pricing.RuleID(ruleID)); err != nil {
			return Quote{}, err
		}
	}
	if req.Checkout {
		return s.Checkout(ctx, id)
	}
	return s.Quote(ctx, id)
}

// WriteQuote writes q to w as one indented JSON document.
func WriteQuote(w io.Writer, q Quote) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(q); err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	return nil
}
