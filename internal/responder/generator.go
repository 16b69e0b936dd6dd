package responder

import (
	"context"
	"fmt"
	"strings"

	"dealerdesk_backend/internal/textgen"
)

// FallbackModel marks replies produced from the static template.
const FallbackModel = "fallback"

const (
	replyTemperature = 0.7
	replyMaxTokens   = 500
)

// ReplyInput seeds reply generation.
type ReplyInput struct {
	CustomerName    string
	VehicleInterest string
	Message         string
	DealershipName  string
	DealershipPhone string
	DealershipEmail string
}

// GeneratedReply is the text to send plus accounting. Err holds the
// collaborator failure that forced the fallback, if any.
type GeneratedReply struct {
	Text       string
	Model      string
	TokensUsed int
	Err        error
}

// Fallback reports whether the static template was used.
func (r GeneratedReply) Fallback() bool {
	return r.Model == FallbackModel
}

// ReplyGenerator writes the first reply in Norwegian.
type ReplyGenerator struct {
	gen textgen.Generator
}

func NewReplyGenerator(gen textgen.Generator) *ReplyGenerator {
	return &ReplyGenerator{gen: gen}
}

// Generate asks the model for a reply and falls back to the template on any
// call failure.
func (g *ReplyGenerator) Generate(ctx context.Context, in ReplyInput) GeneratedReply {
	in = in.withDefaults()

	resp, err := g.gen.Complete(ctx, textgen.Request{
		System:      systemPrompt(in),
		Prompt:      userPrompt(in),
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	})
	if err == nil && strings.TrimSpace(resp.Text) == "" {
		err = textgen.ErrEmptyOutput
	}
	if err != nil {
		return GeneratedReply{
			Text:  FallbackReply(in.DealershipName),
			Model: FallbackModel,
			Err:   err,
		}
	}
	return GeneratedReply{
		Text:       strings.TrimSpace(resp.Text),
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
	}
}

func (in ReplyInput) withDefaults() ReplyInput {
	if strings.TrimSpace(in.CustomerName) == "" {
		in.CustomerName = "kunde"
	}
	if strings.TrimSpace(in.Message) == "" {
		in.Message = "Henvendelse om bil"
	}
	return in
}

func systemPrompt(in ReplyInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Du er en hjelpsom kundeservicerepresentant for %s,
en bilforhandler i Norge. Din oppgave er å svare raskt og profesjonelt på
kundehenvendelser om biler.

Regler for svar:
- Svar alltid på norsk (bokmål)
- Vær høflig, vennlig og profesjonell
- Bekreft kundens interesse
- Fortell at en selger vil ta kontakt snart
- IKKE forhandle priser eller love noe som ikke er bekreftet
- IKKE oppgi kontaktinformasjon (den kommer i signaturen)
- Hold svar kort og konsist (2-4 setninger)
- Bruk et varmt og imøtekommende språk
`, in.DealershipName)

	if in.DealershipPhone != "" || in.DealershipEmail != "" {
		b.WriteString("\nForhandlerens kontaktinformasjon:\n")
		if in.DealershipPhone != "" {
			fmt.Fprintf(&b, "- Telefon: %s\n", in.DealershipPhone)
		}
		if in.DealershipEmail != "" {
			fmt.Fprintf(&b, "- E-post: %s\n", in.DealershipEmail)
		}
	}
	return b.String()
}

func userPrompt(in ReplyInput) string {
	vehicle := in.VehicleInterest
	if vehicle == "" {
		vehicle = "Ikke spesifisert"
	}
	return fmt.Sprintf(`Kunde: %s
Interessert i: %s
Melding: %s

Generer et vennlig svar som:
1. Takker kunden for henvendelsen
2. Bekrefter interesse i kjøretøyet (hvis spesifisert)
3. Forteller at en selger vil kontakte dem snart (innen 24 timer)
4. Er varmt og inviterende

Maks 3-4 setninger. Ikke inkluder signatur eller kontaktinfo.`, in.CustomerName, vehicle, in.Message)
}

// FallbackReply is sent when the model is unavailable. Greeting and
// signature come from the email template.
func FallbackReply(dealershipName string) string {
	return fmt.Sprintf(`Takk for din henvendelse til %s. Vi setter stor pris på din interesse.

En av våre selgere vil ta kontakt med deg så snart som mulig, normalt innen 24 timer, for å hjelpe deg videre.`, dealershipName)
}
