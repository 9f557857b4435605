package core_test

import (
	"testing"

	"distro-backoffice/internal/core"
)

func TestAllocationProposal_NormalizationAndValidation(t *testing.T) {
	tests := []struct {
		name      string
		proposal  core.AllocationProposal
		expectErr bool
	}{
		{
			name: "happy path",
			proposal: core.AllocationProposal{
				DriverUsername: "kumar",
				Dates:          []string{"2025-06-01"},
				Items:          []core.ProposalItem{{ProductCode: "P001", Quantity: 12}},
				Confidence:     0.9,
			},
			expectErr: false,
		},
		{
			name: "timestamped date truncated by Normalize",
			proposal: core.AllocationProposal{
				DriverUsername: "kumar",
				Dates:          []string{"2025-06-01T00:00:00Z"},
				Items:          []core.ProposalItem{{ProductCode: "p001", Quantity: 1}},
				Confidence:     0.5,
			},
			expectErr: false,
		},
		{
			name: "missing driver",
			proposal: core.AllocationProposal{
				Dates: []string{"2025-06-01"},
				Items: []core.ProposalItem{{ProductCode: "P001", Quantity: 1}},
			},
			expectErr: true,
		},
		{
			name: "no dates",
			proposal: core.AllocationProposal{
				DriverUsername: "kumar",
				Items:          []core.ProposalItem{{ProductCode: "P001", Quantity: 1}},
			},
			expectErr: true,
		},
		{
			name: "zero quantity",
			proposal: core.AllocationProposal{
				DriverUsername: "kumar",
				Dates:          []string{"2025-06-01"},
				Items:          []core.ProposalItem{{ProductCode: "P001", Quantity: 0}},
			},
			expectErr: true,
		},
		{
			name: "unspecified bucket allowed alongside a calendar date",
			proposal: core.AllocationProposal{
				DriverUsername: "kumar",
				Dates:          []string{"2025-06-01", core.UnspecifiedDateBucket},
				Items:          []core.ProposalItem{{ProductCode: "P001", Quantity: 1}},
				Confidence:     0.7,
			},
			expectErr: false,
		},
		{
			name: "garbage date",
			proposal: core.AllocationProposal{
				DriverUsername: "kumar",
				Dates:          []string{"tomorrow"},
				Items:          []core.ProposalItem{{ProductCode: "P001", Quantity: 1}},
			},
			expectErr: true,
		},
		{
			name: "confidence out of range",
			proposal: core.AllocationProposal{
				DriverUsername: "kumar",
				Dates:          []string{"2025-06-01"},
				Items:          []core.ProposalItem{{ProductCode: "P001", Quantity: 1}},
				Confidence:     1.5,
			},
			expectErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.proposal
			p.Normalize()
			err := p.Validate()
			if tc.expectErr && err == nil {
				t.Errorf("expected validation error, got nil")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestAllocationProposal_NormalizeDeduplicatesDates(t *testing.T) {
	p := core.AllocationProposal{
		DriverUsername: "kumar",
		Dates:          []string{"2025-06-01", " 2025-06-01 ", "2025-06-02"},
		Items:          []core.ProposalItem{{ProductCode: " p001 ", Quantity: 3}},
		Confidence:     0.8,
	}
	p.Normalize()

	if len(p.Dates) != 2 {
		t.Errorf("expected 2 unique dates, got %v", p.Dates)
	}
	if p.Items[0].ProductCode != "P001" {
		t.Errorf("expected product code upper-cased and trimmed, got %q", p.Items[0].ProductCode)
	}
}
