// Package backend models the Backend value type and the parsing of an
// Ingress object into the Backend list it contributes.
package backend

import (
	"fmt"
	"strings"

	networkingv1 "k8s.io/api/networking/v1"

	"github.com/mariusmagureanu/vingress/pkg/log"
)

var parseLog = log.Logger.WithName("backend")

// PathType mirrors networking.k8s.io/v1's PathType without importing the
// whole networking package into callers that only need the string.
type PathType string

const (
	PathTypePrefix                 PathType = "Prefix"
	PathTypeExact                  PathType = "Exact"
	PathTypeImplementationSpecific PathType = "ImplementationSpecific"
)

// Backend is the unit of upstream routing rendered into the VCL backend
// section. It is a value type: equality is structural, so two Backends
// parsed from equivalent input compare equal.
type Backend struct {
	Namespace string
	Name      string
	Host      string
	Path      string
	Service   string
	PathType  PathType
	Port      uint16
}

// PortMissing is returned when an HTTP path names a Service but that
// Service reference carries no port number.
type PortMissing struct {
	Ingress string
}

func (e *PortMissing) Error() string {
	return fmt.Sprintf("ingress %q: service port number is missing", e.Ingress)
}

// FromIngress parses every (rule, path) pair of an Ingress's HTTP section
// into Backends. A missing service port number fails the whole Ingress
// (spec: "the rest of the Ingress is discarded"); any other Backend found
// before the failing path is discarded along with it, since the caller
// replaces the Ingress's previous entry wholesale on success only.
func FromIngress(ing *networkingv1.Ingress) ([]Backend, error) {
	if ing.Spec.Rules == nil {
		return nil, nil
	}

	namespace := ing.Namespace
	if namespace == "" {
		namespace = "default"
	}
	ingName := ing.Name
	if ingName == "" {
		ingName = "default"
	}

	var out []Backend
	for _, rule := range ing.Spec.Rules {
		if rule.HTTP == nil {
			continue
		}
		for _, p := range rule.HTTP.Paths {
			if p.Backend.Service == nil {
				continue
			}
			svc := p.Backend.Service
			if svc.Port.Number == 0 {
				return nil, &PortMissing{Ingress: ingName}
			}

			path := p.Path
			if path == "" {
				path = "/"
			}

			out = append(out, Backend{
				Namespace: namespace,
				Name:      fmt.Sprintf("%s-%s-%s", namespace, ingName, svc.Name),
				Host:      rule.Host,
				Path:      path,
				Service:   svc.Name,
				PathType:  coercePathType(p.PathType, ingName),
				Port:      uint16(svc.Port.Number),
			})
		}
	}
	return out, nil
}

func coercePathType(pt *networkingv1.PathType, ingName string) PathType {
	if pt == nil {
		return PathTypePrefix
	}
	switch PathType(*pt) {
	case PathTypePrefix, PathTypeExact, PathTypeImplementationSpecific:
		return PathType(*pt)
	default:
		parseLog.Info("coercing unknown pathType to Prefix", "ingress", ingName, "pathType", string(*pt))
		return PathTypePrefix
	}
}

// IsVarnishClass reports whether the Ingress's spec.ingressClassName
// case-insensitively matches the configured ingress class.
func IsVarnishClass(ing *networkingv1.Ingress, class string) bool {
	if ing.Spec.IngressClassName == nil {
		return false
	}
	return strings.EqualFold(*ing.Spec.IngressClassName, class)
}

// Name returns the Ingress's name, defaulting to "default" when absent.
func Name(ing *networkingv1.Ingress) string {
	if ing.Name == "" {
		return "default"
	}
	return ing.Name
}
