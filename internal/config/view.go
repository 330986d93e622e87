package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// View is the printable form of a Config, with secrets redacted.
type View struct {
	Elastic ElasticView `yaml:"elastic" json:"elastic"`
	Engine  EngineView  `yaml:"engine" json:"engine"`
	Query   *QueryView  `yaml:"query,omitempty" json:"query,omitempty"`
}

// ElasticView is the printable [elastic] section.
type ElasticView struct {
	URL       string `yaml:"es_url" json:"es_url"`
	Username  string `yaml:"es_username,omitempty" json:"es_username,omitempty"`
	Password  string `yaml:"es_password,omitempty" json:"es_password,omitempty"`
	Timeout   string `yaml:"es_timeout" json:"es_timeout"`
	IndexName string `yaml:"es_index_name" json:"es_index_name"`
	Field     string `yaml:"es_field" json:"es_field"`
}

// EngineView is the printable [engine] section.
type EngineView struct {
	BatchSize          int    `yaml:"batch_size" json:"batch_size"`
	MaxRetryConnection int    `yaml:"max_retry_connection" json:"max_retry_connection"`
	FormatDate         string `yaml:"format_date" json:"format_date"`
	ScrollSize         int    `yaml:"scroll_size" json:"scroll_size"`
	ScrollKeepAlive    string `yaml:"scroll_keepalive" json:"scroll_keepalive"`
	Workers            int    `yaml:"workers" json:"workers"`
	InvalidPolicy      string `yaml:"invalid_policy" json:"invalid_policy"`
	InvalidSuffix      string `yaml:"invalid_suffix" json:"invalid_suffix"`
	Timezone           string `yaml:"timezone" json:"timezone"`
	MaxBulkPerSecond   string `yaml:"max_bulk_per_second" json:"max_bulk_per_second"`
	BackoffInitial     string `yaml:"backoff_initial" json:"backoff_initial"`
	BackoffMax         string `yaml:"backoff_max" json:"backoff_max"`
}

// QueryView is the printable [query] section.
type QueryView struct {
	GTE       string `yaml:"gte,omitempty" json:"gte,omitempty"`
	LTE       string `yaml:"lte,omitempty" json:"lte,omitempty"`
	ISOFormat string `yaml:"iso_format" json:"iso_format"`
	SortOrder string `yaml:"sort_order" json:"sort_order"`
}

// View returns the printable configuration.
func (c *Config) View() View {
	v := View{
		Elastic: ElasticView{
			URL:       c.Elastic.URL,
			Username:  c.Elastic.Username,
			Timeout:   fmt.Sprintf("%ds", int(c.Elastic.Timeout.Seconds())),
			IndexName: c.Elastic.IndexName,
			Field:     c.Elastic.Field,
		},
		Engine: EngineView{
			BatchSize:          c.Engine.BatchSize,
			MaxRetryConnection: c.Engine.MaxRetryConnection,
			FormatDate:         string(c.Engine.FormatDate),
			ScrollSize:         c.Engine.ScrollSize,
			ScrollKeepAlive:    c.Engine.ScrollKeepAlive.String(),
			Workers:            c.Engine.Workers,
			InvalidPolicy:      string(c.Engine.InvalidPolicy),
			InvalidSuffix:      c.Engine.InvalidSuffix,
			Timezone:           c.Engine.Timezone,
			MaxBulkPerSecond:   strconv.FormatFloat(c.Engine.MaxBulkPerSecond, 'f', -1, 64),
			BackoffInitial:     c.Engine.BackoffInitial.String(),
			BackoffMax:         c.Engine.BackoffMax.String(),
		},
	}
	if c.Elastic.Password != "" {
		v.Elastic.Password = redacted
	}
	if c.Query != nil {
		v.Query = &QueryView{
			GTE:       c.Query.GTE,
			LTE:       c.Query.LTE,
			ISOFormat: string(c.Query.ISOFormat),
			SortOrder: string(c.Query.SortOrder),
		}
	}
	return v
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.View())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
