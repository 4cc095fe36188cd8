package sync

import (
	"strconv"
	"strings"

	"media-janitor/core/remote"
	catalogmodels "media-janitor/feature/catalog/models"
)

// ratingPriority orders rating sources from most to least trusted.
var ratingPriority = []string{"imdb", "tmdb", "metacritic", "rottenTomatoes"}

// bestRating picks one rating value from the per-source map, normalized to
// the 0-10 scale. Percentage-scale sources are divided down.
func bestRating(ratings map[string]remote.Rating) float64 {
	pick := func(r remote.Rating) float64 {
		if r.Value > 10 {
			return r.Value / 10
		}
		return r.Value
	}

	for _, source := range ratingPriority {
		if r, ok := ratings[source]; ok && r.Value > 0 {
			return pick(r)
		}
	}
	for _, r := range ratings {
		if r.Value > 0 {
			return pick(r)
		}
	}
	return 0
}

// normalizeResolution maps free-text resolution labels and WxH dimensions to
// the canonical "NNNNp" form used by the quality filter.
func normalizeResolution(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return ""
	}

	// "1920x1080" style: classify by height.
	if x := strings.IndexByte(label, 'x'); x > 0 {
		if height, err := strconv.Atoi(label[x+1:]); err == nil {
			switch {
			case height >= 2000:
				return "2160p"
			case height >= 1000:
				return "1080p"
			case height >= 700:
				return "720p"
			case height >= 570:
				return "576p"
			default:
				return "480p"
			}
		}
	}

	for _, p := range []string{"2160", "1080", "720", "576", "480"} {
		if strings.Contains(label, p) {
			return p + "p"
		}
	}
	if strings.Contains(label, "4k") {
		return "2160p"
	}
	return label
}

// qualityResolution derives a resolution label from a quality model, falling
// back to the numeric resolution field.
func qualityResolution(q remote.QualityModel, mediaInfo remote.MediaInfo) string {
	if r := normalizeResolution(mediaInfo.Resolution); r != "" {
		return r
	}
	if q.Quality.Resolution > 0 {
		return strconv.Itoa(q.Quality.Resolution) + "p"
	}
	return normalizeResolution(q.Quality.Name)
}

// parseRunTime converts "h:mm:ss" (or "mm:ss") runtime strings to seconds.
// Malformed input yields zero.
func parseRunTime(runtime string) int64 {
	if runtime == "" {
		return 0
	}
	parts := strings.Split(runtime, ":")
	if len(parts) > 3 {
		return 0
	}

	var seconds int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + n
	}
	return seconds
}

// tagLabels renders numeric source tag ids as stable string labels.
func tagLabels(ids []int64) catalogmodels.StringList {
	if len(ids) == 0 {
		return nil
	}
	labels := make(catalogmodels.StringList, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, strconv.FormatInt(id, 10))
	}
	return labels
}
