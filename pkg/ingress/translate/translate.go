// Package translate converts an observed Service's shape into the
// canonical load-balancer address list published onto Ingress status,
// per spec.md §4.6.
package translate

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/mariusmagureanu/vingress/pkg/address"
)

// UnknownServiceType is returned when spec.type is absent or not one of
// the four cases this controller understands.
type UnknownServiceType struct {
	Type corev1.ServiceType
}

func (e *UnknownServiceType) Error() string {
	return fmt.Sprintf("unknown or unsupported service type %q", e.Type)
}

// ClusterIPMissing is returned by the ClusterIP and NodePort cases when
// spec.clusterIP is empty.
type ClusterIPMissing struct{}

func (e *ClusterIPMissing) Error() string { return "service has no clusterIP" }

// ExternalNameMissing is returned by the ExternalName case when
// spec.externalName is empty.
type ExternalNameMissing struct{}

func (e *ExternalNameMissing) Error() string { return "service has no externalName" }

// Service translates svc into the sorted address list spec.md §4.6
// describes. The returned slice is already in canonical sort order (see
// pkg/address.Sort).
func Service(svc *corev1.Service) ([]address.Address, error) {
	var addrs []address.Address

	switch svc.Spec.Type {
	case corev1.ServiceTypeExternalName:
		if svc.Spec.ExternalName == "" {
			return nil, &ExternalNameMissing{}
		}
		addrs = []address.Address{{Hostname: svc.Spec.ExternalName}}

	case corev1.ServiceTypeClusterIP:
		if svc.Spec.ClusterIP == "" {
			return nil, &ClusterIPMissing{}
		}
		addrs = []address.Address{{IP: svc.Spec.ClusterIP}}

	case corev1.ServiceTypeNodePort:
		if len(svc.Spec.ExternalIPs) == 0 {
			if svc.Spec.ClusterIP == "" {
				return nil, &ClusterIPMissing{}
			}
			addrs = []address.Address{{IP: svc.Spec.ClusterIP}}
		} else {
			for _, ip := range svc.Spec.ExternalIPs {
				addrs = append(addrs, address.Address{IP: ip})
			}
		}

	case corev1.ServiceTypeLoadBalancer:
		seen := make(map[string]bool, len(svc.Status.LoadBalancer.Ingress))
		for _, ing := range svc.Status.LoadBalancer.Ingress {
			addrs = append(addrs, address.Address{IP: ing.IP, Hostname: ing.Hostname})
			if ing.IP != "" {
				seen[ing.IP] = true
			}
		}
		for _, ip := range svc.Spec.ExternalIPs {
			if !seen[ip] {
				addrs = append(addrs, address.Address{IP: ip})
				seen[ip] = true
			}
		}

	default:
		return nil, &UnknownServiceType{Type: svc.Spec.Type}
	}

	return address.Sort(addrs), nil
}
