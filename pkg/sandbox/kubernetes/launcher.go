// Package kubernetes provisions execution contexts as cluster sandboxes
// via the agent-sandbox SandboxClaim API. Each cell gets its own claim;
// the claim is deleted when the context is destroyed.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
	"github.com/grothkopp/ainb/pkg/sandbox"
)

// DefaultRunnerPort is where the in-pod runner listens for job requests.
const DefaultRunnerPort = 8211

// generateClaimNameFn is swapped in tests for deterministic names.
var generateClaimNameFn = func() string {
	return fmt.Sprintf("ainb-sbx-%d", time.Now().UnixNano())
}

// Launcher provisions one cluster sandbox per cell by creating a
// SandboxClaim and waiting for the controller to report it ready.
type Launcher struct {
	client       client.Client
	template     string
	namespace    string
	readyTimeout time.Duration
	httpClient   *http.Client

	// RunnerPort is the port the in-pod runner listens on. Set it
	// before the first Launch to override DefaultRunnerPort.
	RunnerPort int
}

var _ sandbox.Launcher = (*Launcher)(nil)

// NewLauncher builds a launcher that claims sandboxes from the named
// template in the given namespace.
func NewLauncher(c client.Client, template, namespace string, readyTimeout time.Duration) *Launcher {
	return &Launcher{
		client:       c,
		template:     template,
		namespace:    namespace,
		readyTimeout: readyTimeout,
		// No client timeout: a job round trip lasts as long as the
		// evaluation it carries.
		httpClient: &http.Client{},
		RunnerPort: DefaultRunnerPort,
	}
}

// Launch creates a SandboxClaim, waits for the sandbox behind it to
// become ready, and wires a connection to the in-pod runner.
func (l *Launcher) Launch(ctx context.Context, cellID api.CellID) (*sandbox.Handle, error) {
	id := api.NewSandboxID()
	name := generateClaimNameFn()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: l.namespace,
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: l.template,
			},
		},
	}
	if err := l.client.Create(ctx, claim); err != nil {
		return nil, api.NewSandboxUnavailableError(fmt.Sprintf("creating sandbox claim: %v", err))
	}

	fqdn, err := l.waitForReady(ctx, name)
	if err != nil {
		l.deleteClaim(name)
		return nil, api.NewSandboxUnavailableError(fmt.Sprintf("sandbox %s: %v", name, err))
	}

	baseURL := fmt.Sprintf("http://%s:%d", fqdn, l.RunnerPort)
	debug.Log("sandbox", "claimed cluster sandbox", "cell_id", cellID, "claim", name, "url", baseURL)

	release := func() { l.deleteClaim(name) }
	return &sandbox.Handle{
		ID:     id,
		CellID: cellID,
		Conn:   newHTTPConn(id, baseURL, l.httpClient, release),
	}, nil
}

// waitForReady polls until the sandbox created for the claim reports
// Ready and has a service FQDN.
func (l *Launcher) waitForReady(ctx context.Context, name string) (string, error) {
	deadline := time.After(l.readyTimeout)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return "", fmt.Errorf("not ready after %s", l.readyTimeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			key := types.NamespacedName{Name: name, Namespace: l.namespace}
			if err := l.client.Get(ctx, key, sb); err != nil {
				// The controller has not created the Sandbox yet.
				continue
			}
			if !isReady(sb) {
				continue
			}
			if sb.Status.ServiceFQDN == "" {
				continue
			}
			return sb.Status.ServiceFQDN, nil
		}
	}
}

// deleteClaim removes the claim so the controller reclaims the sandbox.
// Runs on a background context because release happens during teardown.
func (l *Launcher) deleteClaim(name string) {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: l.namespace,
		},
	}
	if err := l.client.Delete(context.Background(), claim); err != nil {
		slog.Warn("deleting sandbox claim failed", "claim", name, "error", err)
	}
}

func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// NewScheme returns a runtime scheme with the agent-sandbox types
// registered, for building the controller-runtime client.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("registering sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("registering sandbox extension types: %w", err)
	}
	return scheme, nil
}
