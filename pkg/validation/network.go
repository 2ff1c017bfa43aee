package validation

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const maxTopicNameLength = 249

// ValidateBootstrapServers validates a comma separated list of host:port
// broker addresses and returns the trimmed entries.
func ValidateBootstrapServers(servers string) ([]string, error) {
	if strings.TrimSpace(servers) == "" {
		return nil, fmt.Errorf("bootstrap servers cannot be empty")
	}

	var brokers []string
	for _, entry := range strings.Split(servers, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if err := ValidateBrokerAddress(entry); err != nil {
			return nil, fmt.Errorf("invalid broker address %q: %w", entry, err)
		}
		brokers = append(brokers, entry)
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("bootstrap servers cannot be empty")
	}
	return brokers, nil
}

// ValidateBrokerAddress validates a broker address in the format host:port.
func ValidateBrokerAddress(address string) error {
	if address == "" {
		return fmt.Errorf("broker address cannot be empty")
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("broker address must include port: %w", err)
	}
	if host == "" {
		return fmt.Errorf("broker host cannot be empty")
	}
	if err := ValidateHost(host); err != nil {
		return err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %w", err)
	}
	return ValidatePort(port)
}

// ValidateHost accepts an IP address or an RFC 1123 hostname.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if strings.ContainsAny(host, " \t\n\r\"'`;") {
		return fmt.Errorf("host contains invalid characters")
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	if err := validateHostname(host); err != nil {
		return fmt.Errorf("invalid hostname: %w", err)
	}
	return nil
}

// ValidatePort checks that port is a usable TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateTopicName applies the broker's legal topic name rules.
func ValidateTopicName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("topic name cannot be empty")
	case name == "." || name == "..":
		return fmt.Errorf("topic name cannot be %q", name)
	case len(name) > maxTopicNameLength:
		return fmt.Errorf("topic name too long (max %d characters)", maxTopicNameLength)
	}
	for _, ch := range name {
		if !isAlphaNumeric(ch) && ch != '.' && ch != '_' && ch != '-' {
			return fmt.Errorf("invalid character '%c' in topic name", ch)
		}
	}
	return nil
}

// validateHostname validates a hostname according to RFC 1123.
func validateHostname(hostname string) error {
	if len(hostname) > 253 {
		return fmt.Errorf("hostname too long (max 253 characters)")
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 {
			return fmt.Errorf("empty label in hostname")
		}
		if len(label) > 63 {
			return fmt.Errorf("hostname label too long (max 63 characters)")
		}
		for i, ch := range label {
			if i == 0 && !isAlphaNumeric(ch) {
				return fmt.Errorf("hostname label must start with alphanumeric character")
			}
			if i == len(label)-1 && ch == '-' {
				return fmt.Errorf("hostname label cannot end with hyphen")
			}
			if !isAlphaNumeric(ch) && ch != '-' {
				return fmt.Errorf("invalid character '%c' in hostname", ch)
			}
		}
	}
	return nil
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
