package services

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	sigyaml "sigs.k8s.io/yaml"

	"github.com/example/gantry/internal/scan"
)

// manifestDirs are the conventional homes of cluster manifests inside a
// repository.
var manifestDirs = []string{"k8s", "kubernetes", "manifests", "deploy"}

// fromKubernetes extracts one descriptor per Deployment or StatefulSet found
// under the conventional manifest directories. Cluster manifests carry no
// code location, so descriptors anchor at the repository root.
func fromKubernetes(root string, sig *scan.Signals, log logr.Logger) []ServiceDescriptor {
	var out []ServiceDescriptor
	for _, file := range manifestFiles(sig) {
		raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(file)))
		if err != nil {
			log.V(1).Info("manifest unreadable", "file", file, "reason", err.Error())
			continue
		}
		for _, doc := range splitYAMLDocuments(raw) {
			var tm metav1.TypeMeta
			if err := sigyaml.Unmarshal(doc, &tm); err != nil {
				continue
			}
			switch tm.Kind {
			case "Deployment":
				var dep appsv1.Deployment
				if err := sigyaml.Unmarshal(doc, &dep); err != nil {
					log.V(1).Info("deployment manifest malformed", "file", file, "reason", err.Error())
					continue
				}
				if sd, ok := descriptorFromPodSpec(dep.Name, dep.Spec.Template.Spec); ok {
					out = append(out, sd)
				}
			case "StatefulSet":
				var sts appsv1.StatefulSet
				if err := sigyaml.Unmarshal(doc, &sts); err != nil {
					log.V(1).Info("statefulset manifest malformed", "file", file, "reason", err.Error())
					continue
				}
				if sd, ok := descriptorFromPodSpec(sts.Name, sts.Spec.Template.Spec); ok {
					out = append(out, sd)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func manifestFiles(sig *scan.Signals) []string {
	var files []string
	for _, f := range sig.Files {
		ext := strings.ToLower(filepath.Ext(f))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		for _, dir := range manifestDirs {
			if strings.HasPrefix(f, dir+"/") {
				files = append(files, f)
				break
			}
		}
	}
	return files
}

func descriptorFromPodSpec(name string, pod corev1.PodSpec) (ServiceDescriptor, bool) {
	if name == "" || len(pod.Containers) == 0 {
		return ServiceDescriptor{}, false
	}
	container := pod.Containers[0]
	sd := ServiceDescriptor{
		ID:      normalizeID(name),
		Path:    ".",
		Runtime: RuntimeGeneric,
		Source:  SourceKubernetes,
		Image:   container.Image,
	}
	if container.Image != "" {
		sd.Runtime = imageRuntime(container.Image)
	}
	if len(container.Ports) > 0 && container.Ports[0].ContainerPort > 0 {
		sd.Ports = []int{int(container.Ports[0].ContainerPort)}
	}
	return sd, true
}

func splitYAMLDocuments(raw []byte) [][]byte {
	parts := bytes.Split(raw, []byte("\n---"))
	docs := make([][]byte, 0, len(parts))
	for _, part := range parts {
		trimmed := bytes.TrimSpace(part)
		trimmed = bytes.TrimPrefix(trimmed, []byte("---"))
		trimmed = bytes.TrimSpace(trimmed)
		if len(trimmed) == 0 {
			continue
		}
		docs = append(docs, trimmed)
	}
	return docs
}
