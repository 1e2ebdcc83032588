package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	v1 "github.com/auditor-dev/auditor/internal/api/v1"
)

// kubePodUsage is one finished pod as reported by the usage endpoint.
type kubePodUsage struct {
	PodID     string            `json:"pod_id"`
	Namespace string            `json:"namespace"`
	StartTime time.Time         `json:"start_time"`
	EndTime   *time.Time        `json:"end_time"`
	Labels    map[string]string `json:"labels"`
	Usage     map[string]int64  `json:"usage"`
}

// KubeBackend reads finished-pod usage documents from an HTTP endpoint,
// typically a cluster-local exporter aggregating pod lifecycles.
type KubeBackend struct {
	endpoint string
	idPrefix string
	site     string
	client   *http.Client
}

func NewKubeBackend(endpoint, idPrefix, site string, timeout time.Duration) (*KubeBackend, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid usage endpoint %q: %w", endpoint, err)
	}
	if timeout == 0 {
		timeout = defaultKubeTimeout
	}
	return &KubeBackend{
		endpoint: endpoint,
		idPrefix: idPrefix,
		site:     site,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

const defaultKubeTimeout = 30 * time.Second

func (b *KubeBackend) ListRecords(ctx context.Context, since, until time.Time) ([]v1.RecordAdd, error) {
	query := url.Values{}
	query.Set("since", since.UTC().Format(time.RFC3339))
	query.Set("until", until.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build usage request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("usage endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage response: %w", err)
	}

	var pods []kubePodUsage
	if err := json.Unmarshal(body, &pods); err != nil {
		return nil, fmt.Errorf("failed to parse usage response: %w", err)
	}

	records := make([]v1.RecordAdd, 0, len(pods))
	for _, pod := range pods {
		add, err := b.toRecord(pod)
		if err != nil {
			return nil, err
		}
		records = append(records, add)
	}
	return records, nil
}

func (b *KubeBackend) toRecord(pod kubePodUsage) (v1.RecordAdd, error) {
	id, err := v1.ParseName(b.idPrefix + pod.PodID)
	if err != nil {
		return v1.RecordAdd{}, fmt.Errorf("pod %q yields an invalid record id: %w", pod.PodID, err)
	}

	meta := v1.Meta{}
	if b.site != "" {
		site, err := v1.ParseName(b.site)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("invalid site name %q: %w", b.site, err)
		}
		meta.Insert(v1.MustName("site"), []v1.Name{site})
	}
	if pod.Namespace != "" {
		ns, err := v1.ParseName(pod.Namespace)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("pod %q has an invalid namespace: %w", pod.PodID, err)
		}
		meta.Insert(v1.MustName("namespace"), []v1.Name{ns})
	}
	for key, val := range pod.Labels {
		name, err := v1.ParseName(key)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("pod %q has an invalid label key %q: %w", pod.PodID, key, err)
		}
		value, err := v1.ParseName(val)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("pod %q has an invalid label value for %q: %w", pod.PodID, key, err)
		}
		meta.Insert(name, []v1.Name{value})
	}

	components := make([]v1.Component, 0, len(pod.Usage))
	for key, amount := range pod.Usage {
		name, err := v1.ParseName(key)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("pod %q has an invalid usage resource %q: %w", pod.PodID, key, err)
		}
		parsed, err := v1.ParseAmount(amount)
		if err != nil {
			return v1.RecordAdd{}, fmt.Errorf("pod %q has an invalid amount for %q: %w", pod.PodID, key, err)
		}
		components = append(components, v1.Component{Name: name, Amount: parsed})
	}

	add := v1.RecordAdd{
		RecordID:   id,
		Meta:       meta,
		Components: components,
		StartTime:  pod.StartTime,
		StopTime:   pod.EndTime,
	}
	add.Normalize()
	if err := add.Validate(); err != nil {
		return v1.RecordAdd{}, fmt.Errorf("pod %q yields an invalid record: %w", pod.PodID, err)
	}
	return add, nil
}
