package chunker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"supportbot/internal/domain"
)

// DefaultFAQSection labels FAQs that carry no category.
const DefaultFAQSection = "General"

// FAQ is one question/answer pair from the FAQ source.
type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category,omitempty"`
}

// Product is one catalogue entry. Price keeps the source's numeric text.
type Product struct {
	Name        string      `json:"name"`
	Brand       string      `json:"brand"`
	Category    string      `json:"category"`
	Model       string      `json:"model"`
	PriceUSD    json.Number `json:"price_usd"`
	KeyFeatures []string    `json:"key_features"`
}

// Policy is one titled policy section.
type Policy struct {
	Title  string `json:"title"`
	Policy string `json:"policy"`
}

// Sources bundles the three raw knowledge collections.
// PolicyOrder holds the policy keys in file order; keys missing from it follow, sorted.
type Sources struct {
	FAQs        []FAQ
	Products    []Product
	Policies    map[string]Policy
	PolicyOrder []string
}

// KnowledgeChunker turns raw knowledge sources into retrievable chunks.
type KnowledgeChunker struct{}

func NewKnowledgeChunker() *KnowledgeChunker { return &KnowledgeChunker{} }

// Chunk emits FAQs, then products, then policies in source order.
// Entries whose rendered content is blank are skipped.
func (c *KnowledgeChunker) Chunk(src Sources) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(src.FAQs)+len(src.Products)+len(src.Policies))
	for _, f := range src.FAQs {
		if strings.TrimSpace(f.Question) == "" && strings.TrimSpace(f.Answer) == "" {
			continue
		}
		section := f.Category
		if section == "" {
			section = DefaultFAQSection
		}
		chunks = append(chunks, domain.Chunk{
			Type:    domain.ChunkFAQ,
			Section: section,
			Content: fmt.Sprintf("Q: %s\nA: %s", f.Question, f.Answer),
		})
	}
	for _, p := range src.Products {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Type:     domain.ChunkProduct,
			Category: p.Category,
			Content:  productContent(p),
		})
	}
	for _, k := range policyKeys(src) {
		p := src.Policies[k]
		if strings.TrimSpace(p.Policy) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			Type:    domain.ChunkPolicy,
			Section: p.Title,
			Content: fmt.Sprintf("%s:\n%s", p.Title, p.Policy),
		})
	}
	return chunks
}

func policyKeys(src Sources) []string {
	keys := make([]string, 0, len(src.Policies))
	seen := make(map[string]struct{}, len(src.Policies))
	for _, k := range src.PolicyOrder {
		if _, ok := src.Policies[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	var rest []string
	for k := range src.Policies {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func productContent(p Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", p.Name)
	fmt.Fprintf(&b, "Brand: %s\n", p.Brand)
	fmt.Fprintf(&b, "Category: %s\n", p.Category)
	fmt.Fprintf(&b, "Model: %s\n", p.Model)
	fmt.Fprintf(&b, "Price: $%s\n", p.PriceUSD)
	b.WriteString("Key Features:")
	for _, f := range p.KeyFeatures {
		b.WriteString("\n- ")
		b.WriteString(f)
	}
	return b.String()
}

// LoadSources reads the three JSON collections from disk.
func LoadSources(faqsPath, productsPath, policiesPath string) (Sources, error) {
	var src Sources
	if _, err := readJSON(faqsPath, &src.FAQs); err != nil {
		return Sources{}, err
	}
	if _, err := readJSON(productsPath, &src.Products); err != nil {
		return Sources{}, err
	}
	data, err := readJSON(policiesPath, &src.Policies)
	if err != nil {
		return Sources{}, err
	}
	if src.PolicyOrder, err = objectKeys(data); err != nil {
		return Sources{}, fmt.Errorf("parse %s: %w", policiesPath, err)
	}
	return src, nil
}

func readJSON(path string, out any) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return data, nil
}

// objectKeys lists the top-level keys of a JSON object in document order.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
