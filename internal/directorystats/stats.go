// Package directorystats counts rows in the directory and pushes the counts
// to a Prometheus remote_write endpoint or a Pushgateway.
package directorystats

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Collector holds the directory gauges in their own registry so pushes carry
// only these series.
type Collector struct {
	db       *gorm.DB
	registry *prometheus.Registry

	tools         *prometheus.GaugeVec
	users         prometheus.Gauge
	conversations prometheus.Gauge
	messages      *prometheus.GaugeVec
	contacts      prometheus.Gauge
}

func NewCollector(db *gorm.DB) *Collector {
	c := &Collector{
		db:       db,
		registry: prometheus.NewRegistry(),
		tools: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toolhub_directory_tools",
			Help: "AI tools in the directory by moderation state.",
		}, []string{"state"}),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolhub_directory_users",
			Help: "Registered accounts.",
		}),
		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolhub_directory_conversations",
			Help: "Chat conversations.",
		}),
		messages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "toolhub_directory_chat_messages",
			Help: "Chat messages by role.",
		}, []string{"role"}),
		contacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolhub_directory_contact_messages",
			Help: "Contact form submissions.",
		}),
	}
	c.registry.MustRegister(c.tools, c.users, c.conversations, c.messages, c.contacts)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Refresh recounts every gauge.
func (c *Collector) Refresh(ctx context.Context) error {
	db := c.db.WithContext(ctx)

	var approved, pending int64
	if err := db.Table("ai_tools").Where("is_approved = ?", true).Count(&approved).Error; err != nil {
		return err
	}
	if err := db.Table("ai_tools").Where("is_approved = ?", false).Count(&pending).Error; err != nil {
		return err
	}
	c.tools.WithLabelValues("approved").Set(float64(approved))
	c.tools.WithLabelValues("pending").Set(float64(pending))

	for table, gauge := range map[string]prometheus.Gauge{
		"users":              c.users,
		"chat_conversations": c.conversations,
		"contact_messages":   c.contacts,
	} {
		var count int64
		if err := db.Table(table).Count(&count).Error; err != nil {
			return err
		}
		gauge.Set(float64(count))
	}

	var rows []struct {
		Role  string
		Total int64
	}
	if err := db.Table("chat_messages").
		Select("role, COUNT(*) AS total").
		Group("role").
		Scan(&rows).Error; err != nil {
		return err
	}
	c.messages.Reset()
	for _, row := range rows {
		c.messages.WithLabelValues(row.Role).Set(float64(row.Total))
	}
	return nil
}
