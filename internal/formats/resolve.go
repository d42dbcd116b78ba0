package formats

type recipe struct {
	video string
	audio string
}

func (r recipe) args() []string {
	return []string{"-c:v", r.video, "-c:a", r.audio}
}

var (
	streamCopy = recipe{video: "copy", audio: "copy"}
	h264AAC    = recipe{video: "libx264", audio: "aac"}
	vp9Vorbis  = recipe{video: "libvpx-vp9", audio: "libvorbis"}
	h264MP3    = recipe{video: "libx264", audio: "mp3"}

	defaultRecipe = h264AAC
)

var recipes = map[string]map[string]recipe{
	MP4:  {MKV: streamCopy, WebM: vp9Vorbis, AVI: h264MP3},
	MKV:  {MP4: h264AAC, WebM: vp9Vorbis, AVI: h264MP3},
	WebM: {MP4: h264AAC, MKV: streamCopy, AVI: h264MP3},
	AVI:  {MP4: h264AAC, MKV: streamCopy, WebM: vp9Vorbis},
}

// Resolve returns the codec arguments for converting source into target.
// Pairs missing from the table, including identical source and target, use
// the default libx264/aac recipe. The returned slice is owned by the caller.
func Resolve(source, target string) []string {
	if byTarget, ok := recipes[Normalize(source)]; ok {
		if r, ok := byTarget[Normalize(target)]; ok {
			return r.args()
		}
	}
	return defaultRecipe.args()
}

// DefaultArgs returns the fallback recipe.
func DefaultArgs() []string {
	return defaultRecipe.args()
}
