// Package envcfg holds environment blocks shared by the api and worker
// commands.
package envcfg

import (
	"github.com/zmooth/zmooth/internal/services/integrations/archive"
	"github.com/zmooth/zmooth/internal/services/integrations/mikrotik"
	"github.com/zmooth/zmooth/internal/services/integrations/mpesa"
	"github.com/zmooth/zmooth/internal/services/integrations/snmp"
)

// Mikrotik configures the RouterOS API client.
type Mikrotik struct {
	Host               string `env:"HOST"`
	Port               int    `env:"PORT" envDefault:"8728"`
	Username           string `env:"USERNAME"`
	Password           string `env:"PASSWORD"`
	UseTLS             bool   `env:"USE_TLS" envDefault:"false"`
	InsecureSkipVerify bool   `env:"INSECURE_SKIP_VERIFY" envDefault:"false"`
}

// Config converts the block to client config.
func (m Mikrotik) Config() mikrotik.Config {
	return mikrotik.Config{
		Host:               m.Host,
		Port:               m.Port,
		Username:           m.Username,
		Password:           m.Password,
		UseTLS:             m.UseTLS,
		InsecureSkipVerify: m.InsecureSkipVerify,
	}
}

// Mpesa configures Daraja STK push.
type Mpesa struct {
	ConsumerKey    string `env:"CONSUMER_KEY"`
	ConsumerSecret string `env:"CONSUMER_SECRET"`
	Shortcode      string `env:"SHORTCODE"`
	Passkey        string `env:"PASSKEY"`
	CallbackURL    string `env:"CALLBACK_URL"`
	Environment    string `env:"ENVIRONMENT" envDefault:"sandbox"`
}

// Config converts the block to client config.
func (m Mpesa) Config() mpesa.Config {
	return mpesa.Config{
		ConsumerKey:    m.ConsumerKey,
		ConsumerSecret: m.ConsumerSecret,
		Shortcode:      m.Shortcode,
		Passkey:        m.Passkey,
		CallbackURL:    m.CallbackURL,
		Environment:    m.Environment,
	}
}

// Archive configures S3-compatible report uploads.
type Archive struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"zmooth-reports"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
	Prefix    string `env:"PREFIX"`
}

// Config converts the block to client config.
func (a Archive) Config() archive.Config {
	return archive.Config{
		Endpoint:  a.Endpoint,
		AccessKey: a.AccessKey,
		SecretKey: a.SecretKey,
		Bucket:    a.Bucket,
		UseSSL:    a.UseSSL,
		Prefix:    a.Prefix,
	}
}

// SNMP configures router polling.
type SNMP struct {
	Community string `env:"COMMUNITY" envDefault:"public"`
	Port      uint16 `env:"PORT" envDefault:"161"`
	Retries   int    `env:"RETRIES" envDefault:"1"`
}

// Config converts the block to client config.
func (s SNMP) Config() snmp.Config {
	return snmp.Config{Community: s.Community, Port: s.Port, Retries: s.Retries}
}
