// Package amqpurl parses the amqp[s]:// connection URL grammar into the
// fields config.Options and the dialer need.
package amqpurl

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/cordio/amqp91/config"
	"github.com/pkg/errors"
)

// Address is a parsed amqp[s]:// URL.
type Address struct {
	TLS      bool
	Host     string
	Port     int
	Vhost    string
	Username string
	Password string
}

// Parse accepts `amqp[s]://[user[:pass]@]host[:port][/vhost]`. An absent
// port defaults to config.DefaultPlainPort or config.DefaultTLSPort
// depending on scheme; an absent or bare "/" vhost means the default
// vhost "/"; userinfo defaults to guest/guest, RabbitMQ's convention.
func Parse(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, errors.Wrap(err, "amqpurl: parse")
	}

	var a Address
	switch u.Scheme {
	case "amqp":
		a.TLS = false
	case "amqps":
		a.TLS = true
	default:
		return Address{}, errors.Errorf("amqpurl: unsupported scheme %q", u.Scheme)
	}

	a.Host = u.Hostname()
	if a.Host == "" {
		return Address{}, errors.New("amqpurl: missing host")
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Address{}, errors.Wrapf(err, "amqpurl: invalid port %q", portStr)
		}
		a.Port = port
	} else if a.TLS {
		a.Port = config.DefaultTLSPort
	} else {
		a.Port = config.DefaultPlainPort
	}

	a.Username = "guest"
	a.Password = "guest"
	if u.User != nil {
		a.Username = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			a.Password = pass
		}
	}

	vhost := strings.TrimPrefix(u.Path, "/")
	if vhost == "" {
		vhost = "/"
	}
	decoded, err := url.PathUnescape(vhost)
	if err != nil {
		return Address{}, errors.Wrap(err, "amqpurl: invalid vhost escaping")
	}
	a.Vhost = decoded

	return a, nil
}

// HostPort returns "host:port", ready for a net.Dialer.
func (a Address) HostPort() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}
