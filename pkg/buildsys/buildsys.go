// Package buildsys gives the build-system enrichment lookup (an external
// collaborator per spec §1) a concrete Go shape: a narrow interface plus a
// thin XML-RPC-shaped HTTP adapter, wrapped by the handler in a retry
// policy (§4.6).
package buildsys

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"
)

// BuildInfo is the subset of a koji/brew getBuild() reply the pipeline
// cares about.
type BuildInfo struct {
	TaskID int64                  `json:"task_id"`
	NVR    string                 `json:"nvr"`
	Extra  map[string]interface{} `json:"extra"`
}

// Client enriches a build_id with build-system metadata.
type Client interface {
	GetBuild(ctx context.Context, buildID int64) (BuildInfo, error)
}

// XMLRPCClient is a thin adapter around a koji-style XML-RPC endpoint. The
// wire protocol itself is an out-of-core external collaborator (§1); this
// adapter exists so the buildsys-tag handler has something concrete to
// call and retry against, and so tests can supply a fake Client instead.
type XMLRPCClient struct {
	Endpoint string
	HTTP     *http.Client
}

// NewXMLRPCClient constructs a client against endpoint with a sane default
// timeout matching the 60s-per-attempt retry cap (§5).
func NewXMLRPCClient(endpoint string) *XMLRPCClient {
	return &XMLRPCClient{
		Endpoint: endpoint,
		HTTP:     &http.Client{Timeout: 60 * time.Second},
	}
}

type methodCall struct {
	XMLName    xml.Name `xml:"methodCall"`
	MethodName string   `xml:"methodName"`
	Params     struct {
		Param struct {
			Value struct {
				Int int64 `xml:"int"`
			} `xml:"value"`
		} `xml:"param"`
	} `xml:"params"`
}

// getBuildReply is a deliberately loose decode target: koji's getBuild
// response is a struct-of-structs XML-RPC value; only task_id and nvr are
// decoded into BuildInfo, and the rest (including extra) is ignored rather
// than exhaustively modeled.
type getBuildReply struct {
	XMLName xml.Name `xml:"methodResponse"`
	Params  struct {
		Param struct {
			Value struct {
				Struct struct {
					Members []struct {
						Name  string `xml:"name"`
						Value struct {
							String string `xml:"string"`
							Int    *int64 `xml:"int"`
						} `xml:"value"`
					} `xml:"member"`
				} `xml:"struct"`
			} `xml:"value"`
		} `xml:"param"`
	} `xml:"params"`
}

// GetBuild performs a single (non-retrying) getBuild(build_id) call. The
// handler layer supplies the retry/backoff policy.
func (c *XMLRPCClient) GetBuild(ctx context.Context, buildID int64) (BuildInfo, error) {
	call := methodCall{MethodName: "getBuild"}
	call.Params.Param.Value.Int = buildID

	body, err := xml.Marshal(call)
	if err != nil {
		return BuildInfo{}, fmt.Errorf("encode getBuild request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return BuildInfo{}, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return BuildInfo{}, fmt.Errorf("getBuild(%d): %w", buildID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return BuildInfo{}, fmt.Errorf("getBuild(%d): unexpected status %d", buildID, resp.StatusCode)
	}

	var reply getBuildReply
	if err := xml.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return BuildInfo{}, fmt.Errorf("decode getBuild(%d) reply: %w", buildID, err)
	}

	info := BuildInfo{Extra: map[string]interface{}{}}
	for _, m := range reply.Params.Param.Value.Struct.Members {
		switch m.Name {
		case "task_id":
			if m.Value.Int != nil {
				info.TaskID = *m.Value.Int
			}
		case "nvr":
			info.NVR = m.Value.String
		}
	}
	return info, nil
}
