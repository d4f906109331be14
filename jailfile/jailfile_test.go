package jailfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasicDirectives(t *testing.T) {
	input := `
FROM node:18-alpine
WORKDIR /app
COPY . .
RUN yarn install --production
RUN <<EOF
This is some
funny string
EOF
`
	actions, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, actions, 5)

	require.Equal(t, "FROM", actions[0].Directive)
	require.Equal(t, []string{"node:18-alpine"}, actions[0].Args)

	require.Equal(t, "WORKDIR", actions[1].Directive)
	require.Equal(t, []string{"/app"}, actions[1].Args)

	require.Equal(t, "COPY", actions[2].Directive)
	require.Equal(t, []string{".", "."}, actions[2].Args)

	require.Equal(t, "RUN", actions[3].Directive)
	require.Equal(t, []string{"yarn", "install", "--production"}, actions[3].Args)

	require.Equal(t, "RUN", actions[4].Directive)
	require.Nil(t, actions[4].Args)
	require.NotNil(t, actions[4].Heredoc)
	require.Equal(t, "This is some\nfunny string\n", *actions[4].Heredoc)
}

func TestParseFlagsAndEnv(t *testing.T) {
	input := `
FROM alpine
ENV --require PORT
ENV -d HOST=0.0.0.0
VOLUME /data --hint driver=zfs --required --ro
ALLOW mlock --replace=true
COPY --from=builder --to=/app /src/app
`
	actions, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, actions, 6)

	env := actions[1]
	require.Equal(t, "ENV", env.Directive)
	require.Equal(t, "true", env.Flags["require"])
	require.Equal(t, []string{"PORT"}, env.Args)

	vol := actions[3]
	require.Equal(t, "VOLUME", vol.Directive)
	require.Equal(t, "driver=zfs", vol.Flags["hint"])
	require.Equal(t, "true", vol.Flags["required"])
	require.Equal(t, "true", vol.Flags["ro"])

	allow := actions[4]
	require.Equal(t, []string{"mlock"}, allow.Args)
	require.Equal(t, "true", allow.Flags["replace"])

	cp := actions[5]
	require.Equal(t, "builder", cp.Flags["from"])
	require.Equal(t, "/app", cp.Flags["to"])
	require.Equal(t, []string{"/src/app"}, cp.Args)
}

func TestInterpretBuildsPlan(t *testing.T) {
	input := `
FROM $BASE_IMAGE
RUN echo hello
ENV -d GREETING=hi
VOLUME /data --required
ALLOW mlock
NOINIT
SYSVIPC shm msg
MOUNT /host/dir /jail/dir nullfs
`
	actions, err := Parse(input)
	require.NoError(t, err)

	b, err := Interpret(actions, map[string]string{"BASE_IMAGE": "node:18-alpine"})
	require.NoError(t, err)
	require.Equal(t, "node:18-alpine", b.From)
	require.True(t, b.NoInit)
	require.False(t, b.NoDeinit)
	require.True(t, b.SysVIPC["shm"])
	require.True(t, b.SysVIPC["msg"])
	require.Len(t, b.Volumes, 1)
	require.True(t, b.Volumes[0].Required)
	require.Len(t, b.Mounts, 1)
}

func TestInterpretUnknownDirectiveErrors(t *testing.T) {
	actions, err := Parse("BOGUS foo")
	require.NoError(t, err)
	_, err = Interpret(actions, nil)
	require.Error(t, err)
}
