package directory

import (
	"bufio"
	"io"
	"strings"

	"github.com/EO-DataHub/eodhp-directory-services/internal/validate"
)

// readSSHKeys reads an uploaded key file. Every non-blank line must be a
// valid ssh2 public key; the keys are returned newline separated.
func readSSHKeys(files []io.Reader) (string, bool, error) {
	if len(files) == 0 {
		return "", false, nil
	}
	if len(files) > 1 {
		return "", false, malformedf("only one ssh key file can be uploaded at a time")
	}

	var keys []string
	scanner := bufio.NewScanner(files[0])
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := validate.SSHPublicKey(line); err != nil {
			return "", false, err
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return "", false, malformedf("error reading ssh key file: %v", err)
	}
	if len(keys) == 0 {
		return "", false, NewError(KindValidation, "ssh key file contains no keys")
	}

	return strings.TrimRight(strings.Join(keys, "\n"), "\n"), true, nil
}
