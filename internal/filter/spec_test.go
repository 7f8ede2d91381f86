package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternListUnmarshalJSON(t *testing.T) {
	t.Run("lone string becomes a single-element list", func(t *testing.T) {
		var spec Spec
		err := json.Unmarshal([]byte(`{"from": "a@b\\.com"}`), &spec)
		require.NoError(t, err)
		assert.Equal(t, PatternList{`a@b\.com`}, spec.From)
	})

	t.Run("array stays a list", func(t *testing.T) {
		var spec Spec
		err := json.Unmarshal([]byte(`{"subject": ["Receipt", "Invoice"]}`), &spec)
		require.NoError(t, err)
		assert.Equal(t, PatternList{"Receipt", "Invoice"}, spec.Subject)
	})

	t.Run("null imposes no constraint", func(t *testing.T) {
		var spec Spec
		err := json.Unmarshal([]byte(`{"body": null}`), &spec)
		require.NoError(t, err)
		assert.Empty(t, spec.Body)
	})

	t.Run("number is rejected", func(t *testing.T) {
		var spec Spec
		err := json.Unmarshal([]byte(`{"from": 42}`), &spec)
		assert.Error(t, err)
	})
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		want string
	}{
		{
			name: "no constraints",
			spec: Spec{},
			want: "No filters",
		},
		{
			name: "single pattern",
			spec: Spec{From: PatternList{`a@b\.com`}},
			want: `from: /a@b\.com/`,
		},
		{
			name: "pattern list",
			spec: Spec{Subject: PatternList{"Receipt", "Invoice"}},
			want: "subject: (/Receipt/ OR /Invoice/)",
		},
		{
			name: "fixed field order",
			spec: Spec{
				Body:        PatternList{"confirmed"},
				From:        PatternList{"a@b"},
				Attachments: PatternList{"*.pdf"},
				Subject:     PatternList{"Invoice"},
			},
			want: "from: /a@b/ AND subject: /Invoice/ AND body: /confirmed/ AND attachments: *.pdf",
		},
		{
			name: "attachment glob list",
			spec: Spec{Attachments: PatternList{"*.pdf", "*.xlsx"}},
			want: "attachments: (*.pdf OR *.xlsx)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.spec.Describe())
		})
	}
}
