package source

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// RepoId reports the identity of a checkout the user pointed the tool at:
// the origin remote when the path sits inside a git work tree, else the
// directory base name.
func RepoId(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return filepath.Base(path), nil
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		if err == git.ErrRemoteNotFound {
			return filepath.Base(path), nil
		}

		return "", err
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return filepath.Base(path), nil
	}

	return remoteRepoId(urls[0])
}

var scpSyntaxRe = regexp.MustCompile(`^([a-zA-Z0-9_]+)@([a-zA-Z0-9._-]+):(.*)$`)

// remoteRepoId normalizes a remote url to "host/path", handling the scp-ish
// form git uses for ssh remotes.
func remoteRepoId(configUrl string) (string, error) {
	var id string
	if m := scpSyntaxRe.FindStringSubmatch(configUrl); m != nil {
		id = fmt.Sprintf("%s/%s", m[2], m[3])
	} else {
		repoURL, err := url.Parse(configUrl)
		if err != nil {
			return "", err
		}

		id = fmt.Sprintf("%s/%s", repoURL.Host, strings.TrimPrefix(repoURL.Path, "/"))
	}

	return strings.TrimSuffix(id, ".git"), nil
}
