package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const EnvPrefix = "NEWSQA"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	Email          string        `mapstructure:"email"`
	Password       string        `mapstructure:"password"`
	Timeout        time.Duration `mapstructure:"timeout"`
	LogLevel       string        `mapstructure:"log_level"`
	TeardownStatus []int         `mapstructure:"teardown_status"`
	Fixtures       Fixtures      `mapstructure:"fixtures"`

	vars map[string]string
}

// Fixtures configures the bodies used when prerequisites are created.
type Fixtures struct {
	User    UserFixture    `mapstructure:"user"`
	Post    PostFixture    `mapstructure:"post"`
	Comment CommentFixture `mapstructure:"comment"`
}

type UserFixture struct {
	Password  string `mapstructure:"password"`
	FirstName string `mapstructure:"first_name"`
}

type PostFixture struct {
	Title    string   `mapstructure:"title"`
	Text     string   `mapstructure:"text"`
	Tags     []string `mapstructure:"tags"`
	File     string   `mapstructure:"file"`
	FileMime string   `mapstructure:"file_mime"`
}

type CommentFixture struct {
	Content string `mapstructure:"content"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", "http://localhost:8081")
	v.SetDefault("email", "")
	v.SetDefault("password", "")
	v.SetDefault("timeout", "10s")
	v.SetDefault("log_level", "info")
	v.SetDefault("teardown_status", []int{200, 204})
	v.SetDefault("fixtures.user.password", "password123")
	v.SetDefault("fixtures.user.first_name", "QA")
	v.SetDefault("fixtures.post.title", "Test Post Title")
	v.SetDefault("fixtures.post.text", "This is a test post text")
	v.SetDefault("fixtures.post.tags", []string{"tag1", "tag2"})
	v.SetDefault("fixtures.post.file", "")
	v.SetDefault("fixtures.post.file_mime", "image/png")
	v.SetDefault("fixtures.comment.content", "This is a test comment")
}

// Load merges defaults, the given JSON/YAML files in order, and NEWSQA_*
// environment variables (NEWSQA_BASE_URL, NEWSQA_FIXTURES_POST_TITLE, ...).
func Load(paths []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v.SetConfigFile(p)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.vars = flatten(v)
	return &c, nil
}

func flatten(v *viper.Viper) map[string]string {
	out := map[string]string{}
	for _, k := range v.AllKeys() {
		val := v.Get(k)
		if val == nil {
			continue
		}
		if rv := reflect.ValueOf(val); rv.Kind() == reflect.Slice {
			parts := make([]string, rv.Len())
			for i := range parts {
				parts[i] = cast.ToString(rv.Index(i).Interface())
			}
			out[k] = strings.Join(parts, ",")
			continue
		}
		out[k] = cast.ToString(val)
	}
	return out
}

// Vars returns every setting as a string keyed by its dotted name, for
// ${...} interpolation in suites.
func (c *Config) Vars() map[string]string {
	out := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// SetVar overrides one interpolation variable, e.g. after a CLI flag.
func (c *Config) SetVar(key, value string) {
	if c.vars == nil {
		c.vars = map[string]string{}
	}
	c.vars[key] = value
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "base_url")
	}
	if c.Email == "" {
		missing = append(missing, "email")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	return nil
}
