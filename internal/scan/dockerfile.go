package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
)

// DockerfileInfo holds the signals a Dockerfile contributes: the first base
// image and every EXPOSE port in declaration order.
type DockerfileInfo struct {
	BaseImage string
	Ports     []int
}

// ParseDockerfile extracts FROM and EXPOSE instructions. It tolerates
// anything else in the file; a Dockerfile that parses to nothing is valid.
func ParseDockerfile(path string) (*DockerfileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info := &DockerfileInfo{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "FROM":
			if info.BaseImage != "" {
				continue
			}
			image := fields[1]
			if strings.HasPrefix(image, "--") && len(fields) > 2 {
				image = fields[2]
			}
			info.BaseImage = image
		case "EXPOSE":
			for _, raw := range fields[1:] {
				port := raw
				if i := strings.IndexByte(raw, '/'); i > 0 {
					port = raw[:i]
				}
				if n, convErr := strconv.Atoi(port); convErr == nil && n > 0 && n < 65536 {
					info.Ports = append(info.Ports, n)
				}
			}
		}
	}
	return info, scanner.Err()
}

func collectDockerfile(sig *Signals, log logr.Logger) {
	info, err := ParseDockerfile(filepath.Join(sig.Root, "Dockerfile"))
	if err != nil {
		if !os.IsNotExist(err) {
			log.V(1).Info("dockerfile unreadable", "reason", err.Error())
		}
		return
	}
	sig.DockerfilePorts = info.Ports
	sig.DockerfileBase = info.BaseImage
}
