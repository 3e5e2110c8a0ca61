// Package messaging renders campaign message templates for individual
// recipients. The primary placeholder is {name}, replaced with the
// customer's name or "Customer" when the name is blank. Messages may also
// use Liquid syntax ({{ ... }}) for richer personalization.
package messaging

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/crm-engine/internal/domain"
)

// DefaultRecipientName substitutes for {name} when a customer has no name.
const DefaultRecipientName = "Customer"

// Renderer personalizes campaign messages. Parsed Liquid templates are
// cached per campaign so a 10k-recipient dispatch parses the body once.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // campaign id -> *liquid.Template
}

// NewRenderer creates a renderer with the campaign filter set registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// Fallback value: {{ name | default: "Friend" }}
	r.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// Currency formatting for spend figures: {{ totalSpends | currency }}
	r.engine.RegisterFilter("currency", func(value interface{}) string {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case int:
			f = float64(v)
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return v
			}
			f = parsed
		default:
			return fmt.Sprintf("%v", value)
		}
		return fmt.Sprintf("$%.2f", f)
	})

	// Mask email for previews: {{ email | mask_email }}
	r.engine.RegisterFilter("mask_email", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) != 2 {
			return email
		}
		local := parts[0]
		if len(local) <= 2 {
			return local + "***@" + parts[1]
		}
		return local[:2] + "***@" + parts[1]
	})
}

// Validate compiles a template body, returning any syntax error. Plain
// {name} messages always pass.
func (r *Renderer) Validate(body string) error {
	_, err := r.engine.ParseString(body)
	return err
}

// Render personalizes a campaign message for one customer. The body is run
// through Liquid with the customer's fields in scope, then the {name}
// placeholder is substituted in the output. Liquid leaves {name} untouched,
// so the parsed template is cacheable across recipients. A Liquid failure
// falls back to placeholder substitution on the raw body rather than
// dropping the send.
func (r *Renderer) Render(cacheKey, body string, customer *domain.Customer) string {
	name := strings.TrimSpace(customer.Name)
	if name == "" {
		name = DefaultRecipientName
	}

	text := body
	if strings.Contains(body, "{{") || strings.Contains(body, "{%") {
		scope := map[string]interface{}{
			"name":        name,
			"email":       customer.Email,
			"totalSpends": customer.TotalSpends,
			"visits":      customer.Visits,
			"tags":        customer.Tags,
		}
		if customer.LastVisit != nil {
			scope["lastVisit"] = *customer.LastVisit
		}

		tpl, err := r.template(cacheKey, body)
		if err != nil {
			log.Printf("[Renderer] Template parse error, sending raw text: %v", err)
		} else if out, err := tpl.RenderString(scope); err != nil {
			log.Printf("[Renderer] Template render error, sending raw text: %v", err)
		} else {
			text = out
		}
	}

	return strings.ReplaceAll(text, "{name}", name)
}

func (r *Renderer) template(cacheKey, text string) (*liquid.Template, error) {
	if cacheKey != "" {
		if cached, ok := r.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template), nil
		}
	}
	tpl, err := r.engine.ParseString(text)
	if err != nil {
		return nil, err
	}
	if cacheKey != "" {
		r.cache.Store(cacheKey, tpl)
	}
	return tpl, nil
}

// Invalidate drops a cached campaign template.
func (r *Renderer) Invalidate(cacheKey string) {
	r.cache.Delete(cacheKey)
}
