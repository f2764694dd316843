//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/tenantpal/internal/domain"
)

const tenantGuide = `California Tenant Rights Guide.

Habitability. Every rental unit must be habitable. Landlords must provide working heating,
hot water, plumbing and weatherproofing, and must repair conditions that make a unit unfit
to live in within a reasonable time after written notice from the tenant.

Security deposits. A landlord must return the security deposit within twenty one days after
the tenant moves out, together with an itemized statement of any deductions.

Entry. A landlord must give reasonable written notice, normally twenty four hours, before
entering the unit except in an emergency.

Retaliation. A landlord may not raise the rent, reduce services or threaten eviction because
a tenant complained about habitability or exercised another legal right.`

func TestE2E_IngestAndSearch(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	uri := env.UploadDocument("guides/california.txt", tenantGuide)

	t.Run("first ingestion creates the collection", func(t *testing.T) {
		result, err := env.Ingest(uri)
		require.NoError(t, err)
		assert.Equal(t, domain.IngestStatusCreated, result.Status)
		assert.Equal(t, 1, result.PageCount)
		assert.Greater(t, result.ChunkCount, 1)
	})

	t.Run("second ingestion is skipped", func(t *testing.T) {
		result, err := env.Ingest(uri)
		require.NoError(t, err)
		assert.True(t, result.Skipped())
		assert.Equal(t, domain.SkipReasonAlreadyIngested, result.Reason)
	})

	t.Run("collections endpoint lists it", func(t *testing.T) {
		resp, err := env.Get("/api/collections")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)

		var collections []struct {
			Name       string `json:"name"`
			Dimensions int    `json:"dimensions"`
			ChunkCount int    `json:"chunk_count"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &collections))
		require.Len(t, collections, 1)
		assert.Equal(t, testCollection, collections[0].Name)
		assert.Equal(t, testDimensions, collections[0].Dimensions)
	})

	t.Run("search ranks the matching passage first", func(t *testing.T) {
		resp, err := env.Post("/api/search", map[string]any{
			"query": "security deposit returned after tenant moves out",
			"k":     2,
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status)

		var out struct {
			Collection string `json:"collection"`
			Results    []struct {
				Content string  `json:"content"`
				Score   float64 `json:"score"`
				Source  string  `json:"source"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &out))
		require.Len(t, out.Results, 2)
		assert.Contains(t, strings.ToLower(out.Results[0].Content), "deposit")
		assert.GreaterOrEqual(t, out.Results[0].Score, out.Results[1].Score)
		assert.Equal(t, "s3://"+testBucket+"/guides/california.txt", out.Results[0].Source)
	})

	t.Run("unknown collection is not found", func(t *testing.T) {
		resp, err := env.Post("/api/search", map[string]any{"query": "heat", "collection": "missing"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.Status)
	})
}

func TestE2E_RunCrew(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	_, err := env.Ingest(env.UploadDocument("guide.txt", tenantGuide))
	require.NoError(t, err)

	t.Run("returns the structured report", func(t *testing.T) {
		resp, err := env.Post("/api/run-crew", map[string]string{
			"renter_issue_description": "My heating has been broken for two weeks and the unit is not habitable.",
			"lease_document":           "Tenant shall notify landlord of needed repairs in writing.",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.Status, string(resp.Body))
		assert.NotEmpty(t, resp.Header.Get("X-Run-ID"))

		var report map[string]any
		require.NoError(t, json.Unmarshal(resp.Body, &report))
		assert.Equal(t, "high", report["urgency_level"])
		assert.Contains(t, report, "next_steps")

		roles := env.Model.Roles()
		require.Len(t, roles, 4)
		assert.Equal(t, "Report Compiler", roles[3])
		assert.ElementsMatch(t, []string{"Legal Explainer", "Conflict Coach", "Urgency Filter"}, roles[:3])
	})

	t.Run("missing fields are rejected without model calls", func(t *testing.T) {
		before := len(env.Model.Roles())

		resp, err := env.Post("/api/run-crew", map[string]string{"renter_issue_description": "no heat"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "Missing required input fields.", resp.Error)
		assert.Len(t, env.Model.Roles(), before)
	})
}
