package sandbox

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// dockerfile builds an Ubuntu desktop image exposing a virtual framebuffer,
// an x11vnc server, and a websockify bridge so a browser can reach the
// desktop over noVNC. Display :99 is private to each container.
const dockerfile = `FROM ubuntu:22.04

ENV DEBIAN_FRONTEND=noninteractive

RUN apt-get update && apt-get install -y \
    xvfb \
    x11-apps \
    xdotool \
    scrot \
    xterm \
    x11vnc \
    novnc \
    websockify \
    && rm -rf /var/lib/apt/lists/*

ENV DISPLAY=:99

CMD Xvfb :99 -screen 0 {{SCREEN_GEOMETRY}}x24 & \
    x11vnc -display :99 -forever -nopw -listen 0.0.0.0 -rfbport 5900 & \
    websockify --web /usr/share/novnc 6080 localhost:5900 & \
    sleep 1 && xterm -l -lf /home/agent/term.log & \
    sleep infinity
`

// recipeHash returns a short content hash of the rendered Dockerfile so
// NeedsRebuild can detect a screen-geometry or template change without
// re-reading the image itself.
func recipeHash(geometry string) string {
	sum := sha256.Sum256([]byte(renderDockerfile(geometry)))
	return hex.EncodeToString(sum[:])[:16]
}

func renderDockerfile(geometry string) string {
	return strings.ReplaceAll(dockerfile, "{{SCREEN_GEOMETRY}}", geometry)
}

// buildContext tars up the rendered Dockerfile as the sole entry of a
// Docker build context, the shape client.ImageBuild expects.
func buildContext(geometry string) ([]byte, error) {
	content := renderDockerfile(geometry)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: "Dockerfile",
		Mode: 0o644,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write([]byte(content)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
