package domain_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/agro-commercial-go/internal/domain"
)

var segNow = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func band(t *testing.T, id string, area domain.Interval) domain.SegmentationBand {
	t.Helper()
	b, err := domain.NewSegmentationBand("seg-1", "band "+id, area, segNow)
	require.NoError(t, err)
	b.ID = id
	return *b
}

func TestFindOverlappingBand_TouchingBoundsConflict(t *testing.T) {
	existing := []domain.SegmentationBand{band(t, "A", domain.NewInterval(d("0"), d("50")))}

	other := domain.FindOverlappingBand(domain.NewInterval(d("50"), d("100")), existing, "")
	require.NotNil(t, other)
	assert.Equal(t, "A", other.ID)

	assert.Nil(t, domain.FindOverlappingBand(domain.NewInterval(d("50.01"), d("100")), existing, ""))
}

func TestFindOverlappingBand_ExcludesSelfAndInactive(t *testing.T) {
	a := band(t, "A", domain.NewInterval(d("0"), d("50")))
	b := band(t, "B", domain.NewOpenInterval(d("100")))
	b.SetActive(false, segNow)
	existing := []domain.SegmentationBand{a, b}

	assert.Nil(t, domain.FindOverlappingBand(domain.NewInterval(d("0"), d("60")), existing, "A"))
	assert.Nil(t, domain.FindOverlappingBand(domain.NewInterval(d("200"), d("300")), existing, ""))
}

// Random insertions that pass the overlap check never leave two active
// bands intersecting.
func TestBandInsertion_NoPairOverlaps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var bands []domain.SegmentationBand

	for i := 0; i < 500; i++ {
		lo := decimal.NewFromInt(int64(rng.Intn(1000)))
		var area domain.Interval
		if rng.Intn(10) == 0 {
			area = domain.NewOpenInterval(lo)
		} else {
			area = domain.NewInterval(lo, lo.Add(decimal.NewFromInt(int64(rng.Intn(40)))))
		}
		if domain.FindOverlappingBand(area, bands, "") != nil {
			continue
		}
		b := band(t, decimal.NewFromInt(int64(i)).String(), area)
		bands = append(bands, b)
	}

	require.NotEmpty(t, bands)
	for i := range bands {
		for j := range bands {
			if i == j {
				continue
			}
			assert.False(t, bands[i].Area.Overlaps(bands[j].Area), "%s overlaps %s", bands[i].Area, bands[j].Area)
		}
	}
}

func TestFindBandForArea(t *testing.T) {
	bands := []domain.SegmentationBand{
		band(t, "B", domain.NewOpenInterval(d("50.01"))),
		band(t, "A", domain.NewInterval(d("0"), d("50"))),
	}

	got, n := domain.FindBandForArea(bands, d("50"))
	require.NotNil(t, got)
	assert.Equal(t, "A", got.ID)
	assert.Equal(t, 1, n)

	got, n = domain.FindBandForArea(bands, d("10000"))
	require.NotNil(t, got)
	assert.Equal(t, "B", got.ID)
	assert.Equal(t, 1, n)

	got, n = domain.FindBandForArea(bands[:1], d("10"))
	assert.Nil(t, got)
	assert.Zero(t, n)
}

func TestFindBandForArea_InconsistentDataIsDeterministic(t *testing.T) {
	bands := []domain.SegmentationBand{
		band(t, "Z", domain.NewInterval(d("20"), d("80"))),
		band(t, "Y", domain.NewInterval(d("0"), d("100"))),
		band(t, "X", domain.NewInterval(d("0"), d("60"))),
	}
	got, n := domain.FindBandForArea(bands, d("50"))
	require.NotNil(t, got)
	assert.Equal(t, 3, n)
	assert.Equal(t, "X", got.ID, "lowest bound then id")
}

func TestNewSegmentationBand_Validation(t *testing.T) {
	var inv *domain.ErrInvalidArgument
	_, err := domain.NewSegmentationBand("seg-1", "bad", domain.NewInterval(d("100"), d("50")), segNow)
	require.ErrorAs(t, err, &inv)
	_, err = domain.NewSegmentationBand("seg-1", "bad", domain.NewOpenInterval(d("-1")), segNow)
	require.ErrorAs(t, err, &inv)
}

func TestBandDiscount_PercentageRange(t *testing.T) {
	var inv *domain.ErrInvalidArgument
	_, err := domain.NewBandDiscount("A", "5", d("150"), "", segNow)
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "percentage", inv.Field)

	_, err = domain.NewBandDiscount("A", "5", d("-0.01"), "", segNow)
	require.ErrorAs(t, err, &inv)

	bd, err := domain.NewBandDiscount("A", "5", d("100"), "total", segNow)
	require.NoError(t, err)
	assert.True(t, bd.Active)

	require.ErrorAs(t, bd.Update("5", d("101"), true, "", segNow), &inv)
	assert.True(t, bd.Percentage.Equal(d("100")), "failed update must not modify")
}

func TestSegmentation_DefaultFlag(t *testing.T) {
	s, err := domain.NewSegmentation("sup", "Norte", "", domain.TerritoryScope{}, segNow)
	require.NoError(t, err)
	require.NoError(t, s.MarkDefault(segNow))
	assert.True(t, s.IsDefault)

	s.Deactivate(segNow)
	assert.False(t, s.IsDefault)

	var inv *domain.ErrInvalidArgument
	require.ErrorAs(t, s.MarkDefault(segNow), &inv)
}

func TestTerritoryScope_RoundTrip(t *testing.T) {
	scope := domain.TerritoryScope{States: []int64{51, 35, 35}, Municipalities: []int64{3550308}}
	blob, err := scope.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"estados":[35,51],"municipios":[3550308]}`, string(blob))

	parsed, err := domain.ParseTerritoryScope(blob)
	require.NoError(t, err)
	assert.Equal(t, []int64{35, 51}, parsed.States)
	assert.Equal(t, []int64{3550308}, parsed.Municipalities)

	empty, err := domain.TerritoryScope{}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"estados":[],"municipios":[]}`, string(empty))
}

func TestTerritoryScope_MalformedDegradesToUnrestricted(t *testing.T) {
	scope, err := domain.ParseTerritoryScope([]byte(`{"estados":"SP"}`))
	require.Error(t, err)
	assert.True(t, scope.IsEmpty())
	assert.True(t, scope.Covers(35, 3550308))
}

func TestTerritoryScope_Covers(t *testing.T) {
	scope := domain.TerritoryScope{States: []int64{51}, Municipalities: []int64{3550308}}
	assert.True(t, scope.Covers(35, 3550308))
	assert.True(t, scope.Covers(51, 5103403))
	assert.False(t, scope.Covers(35, 3509502))
	assert.False(t, scope.Covers(0, 3509502))
}
