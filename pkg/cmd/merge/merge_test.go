package merge

import (
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/telemetry-merger/pkg/config"
	"github.com/mpapenbr/telemetry-merger/pkg/grouper"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
	"github.com/mpapenbr/telemetry-merger/pkg/pipeline"
	"github.com/mpapenbr/telemetry-merger/pkg/sink"
	"github.com/mpapenbr/telemetry-merger/testsupport/basedata"
)

func TestBuildSummary(t *testing.T) {
	config.Format = sink.FormatCSV
	config.Output = "out"
	t.Cleanup(func() { config.Format, config.Output = "", "" })

	key := basedata.SampleSession()
	out := &pipeline.Output{
		Merged: basedata.SampleMergedTable(),
		Report: &pipeline.Report{
			Sessions: []model.SessionKey{key},
			Weather: pipeline.StageReport{
				Failures: []grouper.GroupFailure{{Key: model.GroupKey{Session: key}, Err: errors.New("x")}},
			},
			Gaps: pipeline.StageReport{
				Warnings: []grouper.EmptyGroupWarning{{Key: model.GroupKey{Session: key, Entity: "1"}}},
			},
		},
	}
	runID := uuid.Must(uuid.NewV7())
	got := buildSummary(runID, out, []*model.Table{out.Merged})

	assert.Equal(t, runID, got.RunID)
	assert.Equal(t, []string{"2023/6/R"}, got.Sessions)
	assert.Empty(t, got.Missing)
	assert.Equal(t, "out", got.Target)
	assert.Equal(t, 1, got.Failures)
	assert.Equal(t, 1, got.Warnings)
	assert.Len(t, got.Tables, 1)
	assert.Equal(t, 3, got.Tables[0].Rows)
}
