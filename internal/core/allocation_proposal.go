package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProposalItem is a single product line in an allocation proposal.
type ProposalItem struct {
	ProductCode string `json:"product_code" jsonschema_description:"The exact product code from the provided catalog"`
	Quantity    int    `json:"quantity" jsonschema_description:"The whole-number quantity to allocate (always positive)"`
}

// AllocationProposal is the AI-generated plan for assigning pending demand
// to a driver. It is never executed without explicit human confirmation.
type AllocationProposal struct {
	DriverUsername string         `json:"driver_username" jsonschema_description:"The username of the driver to allocate to. Must be one of the provided drivers."`
	Dates          []string       `json:"dates" jsonschema_description:"Delivery dates to allocate, each in YYYY-MM-DD format, or the literal string unspecified for orders with no delivery date"`
	Items          []ProposalItem `json:"items" jsonschema_description:"Product quantities to allocate across the selected dates"`
	Confidence     float64        `json:"confidence" jsonschema_description:"Confidence score between 0.0 and 1.0"`
	Reasoning      string         `json:"reasoning" jsonschema_description:"Explanation for the proposed allocation"`
}

// Normalize cleans up common formatting issues in LLM output.
func (p *AllocationProposal) Normalize() {
	p.DriverUsername = strings.TrimSpace(p.DriverUsername)

	dates := p.Dates[:0]
	seen := make(map[string]bool, len(p.Dates))
	for _, d := range p.Dates {
		d = strings.TrimSpace(d)
		if len(d) > 10 {
			d = d[:10]
		}
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	p.Dates = dates

	for i := range p.Items {
		p.Items[i].ProductCode = strings.ToUpper(strings.TrimSpace(p.Items[i].ProductCode))
	}
}

// Validate enforces structural rules before the proposal is shown to the
// operator. Business checks (driver exists, dates not yet allocated) happen
// at execution time against the store.
func (p *AllocationProposal) Validate() error {
	if p.DriverUsername == "" {
		return errors.New("proposal must name a driver")
	}
	if len(p.Dates) == 0 {
		return errors.New("proposal must include at least one delivery date")
	}
	for _, d := range p.Dates {
		if d == UnspecifiedDateBucket {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("invalid delivery date %q: %w", d, err)
		}
	}
	if len(p.Items) == 0 {
		return errors.New("proposal must include at least one product")
	}
	for _, it := range p.Items {
		if it.ProductCode == "" {
			return errors.New("proposal item is missing a product code")
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("product %s: quantity must be positive, got %d", it.ProductCode, it.Quantity)
		}
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]", p.Confidence)
	}
	return nil
}
