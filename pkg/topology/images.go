package topology

import "strings"

// DefaultImage is used when a node is added without naming an image.
const DefaultImage = "default_rocky_9"

// imageUsers maps known image names to the login account the image boots
// with. Unknown images fall back to a distro-name scan of the image string.
var imageUsers = map[string]string{
	"default_centos7":        "centos",
	"default_centos8_stream": "centos",
	"default_centos9_stream": "centos",
	"default_debian_11":      "debian",
	"default_debian_12":      "debian",
	"default_fedora_39":      "fedora",
	"default_fedora_40":      "fedora",
	"default_kali":           "kali",
	"default_rocky_8":        "rocky",
	"default_rocky_9":        "rocky",
	"default_ubuntu_20":      "ubuntu",
	"default_ubuntu_22":      "ubuntu",
	"default_ubuntu_24":      "ubuntu",
	"docker_rocky_8":         "rocky",
	"docker_rocky_9":         "rocky",
	"docker_ubuntu_20":       "ubuntu",
	"docker_ubuntu_22":       "ubuntu",
}

var distroUsers = []struct{ distro, user string }{
	{"rocky", "rocky"},
	{"ubuntu", "ubuntu"},
	{"centos", "centos"},
	{"debian", "debian"},
	{"fedora", "fedora"},
	{"kali", "kali"},
}

// imageUsername resolves the login user for an image name.
func imageUsername(image string) string {
	if user, ok := imageUsers[image]; ok {
		return user
	}
	lower := strings.ToLower(image)
	for _, d := range distroUsers {
		if strings.Contains(lower, d.distro) {
			return d.user
		}
	}
	return "rocky"
}
