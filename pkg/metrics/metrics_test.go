package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	// 重复调用不会 panic
	Register(r)
	assert.Equal(t, prometheus.Registerer(r), GetRegisterer())

	OnlinePlayers.Set(3)
	TeardownErrors.WithLabelValues("room").Inc()
	families, err := r.Gather()
	assert.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "pangya_gameserver_online_players")
	assert.Contains(t, names, "pangya_gameserver_teardown_errors_total")
}
