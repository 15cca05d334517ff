package mikrotik

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-routeros/routeros/v3"
	"github.com/go-routeros/routeros/v3/proto"
)

const (
	defaultPort        = 8728
	defaultDialTimeout = 10 * time.Second
)

// Config locates the router API.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	// InsecureSkipVerify accepts self-signed router certificates.
	InsecureSkipVerify bool
	DialTimeout        time.Duration
}

// Enabled reports whether a router is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.Username) != ""
}

// conn is the subset of *routeros.Client the gateway uses.
type conn interface {
	Run(sentence ...string) (*routeros.Reply, error)
	Close() error
}

type dialFunc func(ctx context.Context, cfg Config) (conn, error)

// Client is the RouterOS-backed Gateway.
type Client struct {
	cfg  Config
	dial dialFunc
	logf func(format string, args ...any)
}

var _ Gateway = (*Client)(nil)

// NewGateway returns a RouterOS client, or Disabled when cfg has no host.
func NewGateway(cfg Config) Gateway {
	if !cfg.Enabled() {
		return Disabled{}
	}
	return NewClient(cfg)
}

// NewClient builds a client dialing the configured router.
func NewClient(cfg Config) *Client {
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Client{cfg: cfg, dial: dialRouterOS, logf: log.Printf}
}

func dialRouterOS(ctx context.Context, cfg Config) (conn, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	if cfg.UseTLS {
		return routeros.DialTLSContext(ctx, address, cfg.Username, cfg.Password, &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify})
	}
	return routeros.DialContext(ctx, address, cfg.Username, cfg.Password)
}

// with opens a connection, runs fn and closes the connection.
func (c *Client) with(ctx context.Context, op string, fn func(conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	api, err := c.dial(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("mikrotik %s: connect: %w", op, err)
	}
	defer func() {
		if closeErr := api.Close(); closeErr != nil {
			c.logf("mikrotik %s: close: %v", op, closeErr)
		}
	}()
	if err := fn(api); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("mikrotik %s: %w", op, err)
	}
	return nil
}

// attrs renders non-empty key/value pairs as RouterOS attribute words.
func attrs(pairs ...string) []string {
	words := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			continue
		}
		words = append(words, "="+pairs[i]+"="+pairs[i+1])
	}
	return words
}

func command(path string, words ...string) []string {
	return append([]string{path}, words...)
}

// findIDs returns the .id of every entry under menu matching key=value.
func findIDs(api conn, menu, key, value string) ([]string, error) {
	reply, err := api.Run(menu+"/print", "?"+key+"="+value, "=.proplist=.id")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(reply.Re))
	for _, sentence := range reply.Re {
		if id := sentence.Map[".id"]; id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) AddHotspotUser(ctx context.Context, user HotspotUser) error {
	return c.with(ctx, "add hotspot user", func(api conn) error {
		profile := user.Profile
		if profile == "" {
			profile = "default"
		}
		limitBytes := ""
		if user.LimitBytesTotal > 0 {
			limitBytes = strconv.FormatInt(user.LimitBytesTotal, 10)
		}
		_, err := api.Run(command("/ip/hotspot/user/add", attrs(
			"name", user.Name,
			"password", user.Password,
			"profile", profile,
			"mac-address", user.MACAddress,
			"limit-uptime", user.LimitUptime,
			"limit-bytes-total", limitBytes,
		)...)...)
		return err
	})
}

func (c *Client) UpdateHotspotUser(ctx context.Context, name string, update HotspotUserUpdate) error {
	return c.with(ctx, "update hotspot user", func(api conn) error {
		ids, err := findIDs(api, "/ip/hotspot/user", "name", name)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNotFound
		}
		disabled := ""
		if update.Disabled != nil {
			disabled = "no"
			if *update.Disabled {
				disabled = "yes"
			}
		}
		limitBytes := ""
		if update.LimitBytesTotal > 0 {
			limitBytes = strconv.FormatInt(update.LimitBytesTotal, 10)
		}
		_, err = api.Run(command("/ip/hotspot/user/set", attrs(
			".id", ids[0],
			"profile", update.Profile,
			"limit-uptime", update.LimitUptime,
			"limit-bytes-total", limitBytes,
			"disabled", disabled,
		)...)...)
		return err
	})
}

func (c *Client) RemoveHotspotUser(ctx context.Context, name string) error {
	return c.removeByName(ctx, "remove hotspot user", "/ip/hotspot/user", name)
}

func (c *Client) removeByName(ctx context.Context, op, menu, name string) error {
	return c.with(ctx, op, func(api conn) error {
		ids, err := findIDs(api, menu, "name", name)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNotFound
		}
		_, err = api.Run(menu+"/remove", "=.id="+ids[0])
		return err
	})
}

// DisconnectUser removes every active hotspot entry of the user.
func (c *Client) DisconnectUser(ctx context.Context, name string) error {
	return c.with(ctx, "disconnect user", func(api conn) error {
		ids, err := findIDs(api, "/ip/hotspot/active", "user", name)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := api.Run("/ip/hotspot/active/remove", "=.id="+id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Client) ActiveUsers(ctx context.Context) ([]ActiveUser, error) {
	var users []ActiveUser
	err := c.with(ctx, "list active users", func(api conn) error {
		reply, err := api.Run("/ip/hotspot/active/print")
		if err != nil {
			return err
		}
		users = activeUsersFromReply(reply.Re)
		return nil
	})
	return users, err
}

func activeUsersFromReply(sentences []*proto.Sentence) []ActiveUser {
	users := make([]ActiveUser, 0, len(sentences))
	for _, s := range sentences {
		users = append(users, ActiveUser{
			ID:         s.Map[".id"],
			User:       s.Map["user"],
			Address:    s.Map["address"],
			MACAddress: s.Map["mac-address"],
			Uptime:     s.Map["uptime"],
			BytesIn:    s.Map["bytes-in"],
			BytesOut:   s.Map["bytes-out"],
		})
	}
	return users
}

func (c *Client) CreateUserProfile(ctx context.Context, profile Profile) error {
	return c.with(ctx, "create profile", func(api conn) error {
		shared := profile.SharedUsers
		if shared <= 0 {
			shared = 1
		}
		_, err := api.Run(command("/ip/hotspot/user/profile/add", attrs(
			"name", profile.Name,
			"shared-users", strconv.Itoa(shared),
			"rate-limit", profile.RateLimit,
			"session-timeout", profile.SessionTimeout,
		)...)...)
		return err
	})
}

func (c *Client) AddPPPSecret(ctx context.Context, secret PPPSecret) error {
	return c.with(ctx, "add ppp secret", func(api conn) error {
		service := secret.Service
		if service == "" {
			service = "pppoe"
		}
		_, err := api.Run(command("/ppp/secret/add", attrs(
			"name", secret.Name,
			"password", secret.Password,
			"service", service,
			"profile", secret.Profile,
		)...)...)
		return err
	})
}

func (c *Client) RemovePPPSecret(ctx context.Context, name string) error {
	return c.removeByName(ctx, "remove ppp secret", "/ppp/secret", name)
}

func (c *Client) AddFirewallFilter(ctx context.Context, rule FirewallFilter) error {
	return c.with(ctx, "add firewall filter", func(api conn) error {
		chain := rule.Chain
		if chain == "" {
			chain = "forward"
		}
		_, err := api.Run(command("/ip/firewall/filter/add", attrs(
			"chain", chain,
			"action", rule.Action,
			"protocol", rule.Protocol,
			"dst-port", rule.DstPort,
			"src-address", rule.SrcAddr,
			"dst-address", rule.DstAddr,
			"comment", rule.Comment,
		)...)...)
		return err
	})
}

func (c *Client) AddIPPool(ctx context.Context, pool IPPool) error {
	return c.with(ctx, "add ip pool", func(api conn) error {
		_, err := api.Run(command("/ip/pool/add", attrs("name", pool.Name, "ranges", pool.Ranges)...)...)
		return err
	})
}

func (c *Client) AddIPBinding(ctx context.Context, binding IPBinding) error {
	return c.with(ctx, "add ip binding", func(api conn) error {
		_, err := api.Run(command("/ip/hotspot/ip-binding/add", attrs(
			"mac-address", binding.MACAddress,
			"type", binding.Type,
			"comment", binding.Comment,
		)...)...)
		return err
	})
}
