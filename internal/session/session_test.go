package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabot-trader/internal/models"
)

func order(id string) *models.Order {
	return &models.Order{ID: id}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Add("s1", "tp", order("1"))
	r.Add("s1", "sl", order("2"))
	r.Add("s2", "tp", order("3"))
	r.Add("s1", "tp", order("4"))
	r.Add("s1", "tp", nil)

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []*models.Order{order("1"), order("2"), order("4")}, r.Find("s1"))
	assert.Equal(t, []*models.Order{order("1"), order("4")}, r.FindTagged("s1", "tp"))
	assert.Equal(t, []*models.Order{order("3")}, r.FindTagged("s2", "tp"))
	assert.Empty(t, r.Find("nope"))
}

func TestRegistryConcurrentAdds(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Add("s", "t", order("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestParseWhich(t *testing.T) {
	assert.Equal(t, WhichBuy, ParseWhich("buy"))
	assert.Equal(t, WhichTagged, ParseWhich("tagged"))
	assert.Equal(t, WhichSession, ParseWhich("session"))
	assert.Equal(t, WhichSession, ParseWhich("whatever"))
}

func TestAlgoRegistryCancel(t *testing.T) {
	setup := func() (*AlgoRegistry, []*Algo) {
		r := NewAlgoRegistry()
		return r, []*Algo{
			r.Start(models.SideBuy, "s1", "twap"),
			r.Start(models.SideSell, "s1", "iceberg"),
			r.Start(models.SideBuy, "s2", "twap"),
		}
	}

	tests := []struct {
		name    string
		which   Which
		tag     string
		session string
		want    []bool
	}{
		{"buy side", WhichBuy, "", "s1", []bool{true, false, true}},
		{"sell side", WhichSell, "", "s1", []bool{false, true, false}},
		{"all", WhichAll, "", "", []bool{true, true, true}},
		{"session", WhichSession, "", "s1", []bool{true, true, false}},
		{"tagged", WhichTagged, "twap", "s1", []bool{true, false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, algos := setup()
			n := r.Cancel(tt.which, tt.tag, tt.session)

			count := 0
			for i, a := range algos {
				assert.Equal(t, tt.want[i], a.Cancelled(), "algo %d", i)
				assert.Equal(t, tt.want[i], r.IsCancelled(a.ID))
				if tt.want[i] {
					count++
				}
			}
			assert.Equal(t, count, n)
		})
	}
}

func TestAlgoRegistryLifecycle(t *testing.T) {
	r := NewAlgoRegistry()
	a := r.Start(models.SideBuy, "s1", "twap")
	require.NotEmpty(t, a.ID)
	require.Len(t, r.Active(), 1)

	r.End(a)
	assert.Empty(t, r.Active())
	assert.False(t, r.IsCancelled(a.ID))
	assert.Zero(t, r.Cancel(WhichAll, "", ""))
}
