package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/partners_backend/utils"
)

// RegistrySnapshot is the normalized view of a public-registry record for
// one legal entity. Raw keeps the payload as received for the audit log.
type RegistrySnapshot struct {
	Document   string
	LegalName  string
	TradeName  string
	TaxRegime  string
	Email      string
	Phone      string
	Cep        string
	Street     string
	City       string
	State      string
	StateTaxId string
	Suframa    string
	Raw        json.RawMessage
}

// RegistryClient fetches legal-entity records from the public CNPJ
// registry.
type RegistryClient interface {
	LookupByDocument(ctx context.Context, document string) (*RegistrySnapshot, error)
}

type httpRegistryClient struct {
	baseURL string
	http    *http.Client
}

// NewRegistryClient reads REGISTRY_BASE_URL and REGISTRY_TIMEOUT_MS. With
// no base URL configured every lookup fails, which the audit engine
// degrades into a warning.
func NewRegistryClient() RegistryClient {
	timeout := 5 * time.Second
	if ms := strings.TrimSpace(os.Getenv("REGISTRY_TIMEOUT_MS")); ms != "" {
		if parsed, err := time.ParseDuration(ms + "ms"); err == nil && parsed > 0 {
			timeout = parsed
		}
	}
	return &httpRegistryClient{
		baseURL: strings.TrimRight(strings.TrimSpace(os.Getenv("REGISTRY_BASE_URL")), "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type rawRegistryRecord struct {
	Document    string `json:"cnpj"`
	LegalName   string `json:"razao_social"`
	LegalName2  string `json:"nome_legal"`
	TradeName   string `json:"nome_fantasia"`
	TaxRegime   string `json:"regime_tributario"`
	Email       string `json:"email"`
	Phone       string `json:"ddd_telefone_1"`
	Phone2      string `json:"telefone"`
	Cep         string `json:"cep"`
	Street      string `json:"logradouro"`
	City        string `json:"municipio"`
	State       string `json:"uf"`
	StateTaxId  string `json:"inscricao_estadual"`
	Suframa     string `json:"suframa"`
}

func (c *httpRegistryClient) LookupByDocument(ctx context.Context, document string) (*RegistrySnapshot, error) {
	if c.baseURL == "" {
		return nil, utils.NewExternalError("registry base url not configured", nil)
	}
	document = utils.DigitsOnly(document)
	if document == "" {
		return nil, utils.NewValidationError("document is required for registry lookup")
	}

	url := fmt.Sprintf("%s/cnpj/%s", c.baseURL, document)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, utils.NewExternalError("registry request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.NewExternalError("registry response unreadable", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, utils.NewNotFoundError("document %s not found in registry", document)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, utils.NewExternalError(fmt.Sprintf("registry returned status %d", resp.StatusCode), nil)
	}

	var raw rawRegistryRecord
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, utils.NewExternalError("registry payload is not valid json", err)
	}

	return &RegistrySnapshot{
		Document:   utils.DigitsOnly(utils.FirstNonEmpty(raw.Document, document)),
		LegalName:  utils.FirstNonEmpty(raw.LegalName, raw.LegalName2),
		TradeName:  raw.TradeName,
		TaxRegime:  raw.TaxRegime,
		Email:      raw.Email,
		Phone:      utils.FirstNonEmpty(raw.Phone, raw.Phone2),
		Cep:        raw.Cep,
		Street:     raw.Street,
		City:       raw.City,
		State:      raw.State,
		StateTaxId: raw.StateTaxId,
		Suframa:    raw.Suframa,
		Raw:        body,
	}, nil
}
