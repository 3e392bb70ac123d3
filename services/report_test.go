package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildChangeReportOnlyChangedTraits(t *testing.T) {
	before := map[string]float64{"开放性": 50, "外向性": 60, "宜人性": 70}
	after := map[string]float64{"开放性": 51.04, "外向性": 60, "宜人性": 65}

	report := BuildChangeReport(before, after)

	assert.Len(t, report, 2)
	assert.Equal(t, 50.0, report["开放性"].Original)
	assert.Equal(t, 51.04, report["开放性"].Updated)
	assert.Equal(t, 65.0, report["宜人性"].Updated)
	assert.NotContains(t, report, "外向性")
}

func TestBuildChangeReportNullOldScoreReadsAsZero(t *testing.T) {
	// before中缺失的特征按0处理
	report := BuildChangeReport(map[string]float64{}, map[string]float64{"神经质": 3.5})

	assert.Equal(t, 0.0, report["神经质"].Original)
	assert.Equal(t, 3.5, report["神经质"].Updated)
}

func TestBuildChangeReportEmpty(t *testing.T) {
	assert.Empty(t, BuildChangeReport(map[string]float64{"开放性": 50}, map[string]float64{"开放性": 50}))
	assert.Empty(t, BuildChangeReport(nil, nil))
}
