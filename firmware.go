package envisalink

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
)

var firmwareRe = regexp.MustCompile(`(?s)Firmware Version:.*?(\d+\.\d+\.\d+)`)

// FetchFirmware reads the firmware version from the board's web interface.
func (c *Client) FetchFirmware(ctx context.Context) (string, error) {
	url := fmt.Sprintf("http://%s/3", net.JoinHostPort(c.opts.Host, c.opts.WebPort))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("could not fetch firmware version: %w", err)
	}
	req.SetBasicAuth(c.opts.User, c.opts.Password)

	cli := http.Client{Timeout: c.opts.Timeout}
	resp, err := cli.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not fetch firmware version: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("could not fetch firmware version: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("could not fetch firmware version: %w", err)
	}
	version, err := parseFirmware(body)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.info.FirmwareVersion = version
	c.mu.Unlock()
	log.Info("got firmware version", "version", version)
	return version, nil
}

func parseFirmware(body []byte) (string, error) {
	m := firmwareRe.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("firmware version not found")
	}
	return string(m[1]), nil
}
